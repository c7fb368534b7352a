// Package email holds the mutable composition state of an outbound message
// (addresses, custom headers, body parts, attachments, priority) and turns a
// frozen snapshot of it into a MIME message.
package email

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Kind selects one of the recipient or origin address sets, or one of the
// single-address fields.
type Kind string

const (
	KindTo   Kind = "to"
	KindCc   Kind = "cc"
	KindBcc  Kind = "bcc"
	KindFrom Kind = "from"

	KindSender      Kind = "sender"
	KindReturnPath  Kind = "returnpath"
	KindReadReceipt Kind = "readreceipt"
)

var kindAliases = map[string]Kind{
	"receiver":        KindTo,
	"addressee":       KindTo,
	"carboncopy":      KindCc,
	"blindcarboncopy": KindBcc,
	"hidden":          KindBcc,
	"bounce":          KindReturnPath,
	"receipt":         KindReadReceipt,
}

// ParseKind maps a kind name or one of its aliases to the canonical Kind,
// case-insensitively. Unknown names are returned unchanged.
func ParseKind(name string) Kind {
	name = strings.ToLower(strings.TrimSpace(name))
	if k, ok := kindAliases[name]; ok {
		return k
	}
	return Kind(name)
}

// Single reports whether k names a single-address field rather than a set.
func (k Kind) Single() bool {
	return k == KindSender || k == KindReturnPath || k == KindReadReceipt
}

// Address is an email address with an optional display name.
type Address struct {
	Email string
	Name  string
}

// IsZero reports whether no email is set.
func (a Address) IsZero() bool {
	return a.Email == ""
}

// String formats the address for a header, quoting the name when present.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}

// AddressList is an insertion-ordered set of addresses keyed by email.
// Adding an email that is already present replaces its name in place.
type AddressList struct {
	order []string
	names map[string]string
}

// Add inserts email or updates its name.
func (l *AddressList) Add(email, name string) {
	if l.names == nil {
		l.names = make(map[string]string)
	}
	if _, ok := l.names[email]; !ok {
		l.order = append(l.order, email)
	}
	l.names[email] = name
}

// Len returns the number of distinct emails.
func (l *AddressList) Len() int {
	return len(l.order)
}

// Name returns the display name stored for email.
func (l *AddressList) Name(email string) (string, bool) {
	name, ok := l.names[email]
	return name, ok
}

// Addresses returns the entries in insertion order.
func (l *AddressList) Addresses() []Address {
	return lo.Map(l.order, func(email string, _ int) Address {
		return Address{Email: email, Name: l.names[email]}
	})
}

// Emails returns the bare emails in insertion order.
func (l *AddressList) Emails() []string {
	return append([]string(nil), l.order...)
}

// First returns the earliest inserted entry.
func (l *AddressList) First() (Address, bool) {
	if len(l.order) == 0 {
		return Address{}, false
	}
	email := l.order[0]
	return Address{Email: email, Name: l.names[email]}, true
}

// Rename sets name on every entry.
func (l *AddressList) Rename(name string) {
	for email := range l.names {
		l.names[email] = name
	}
}

// Reset empties the list.
func (l *AddressList) Reset() {
	l.order = nil
	l.names = nil
}

// Clone returns an independent copy.
func (l *AddressList) Clone() AddressList {
	var c AddressList
	for _, a := range l.Addresses() {
		c.Add(a.Email, a.Name)
	}
	return c
}

// Entries normalizes scalar or list address input into a slice of
// addresses. Accepted forms:
//
//	string                 a single bare email
//	[]string               bare emails
//	map[string]string      email -> display name (sorted by email)
//	Address / []Address    used as is
func Entries(value any) ([]Address, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []Address{{Email: v}}, nil
	case []string:
		return lo.FilterMap(v, func(email string, _ int) (Address, bool) {
			return Address{Email: email}, email != ""
		}), nil
	case map[string]string:
		emails := lo.Keys(v)
		sort.Strings(emails)
		return lo.Map(emails, func(email string, _ int) Address {
			return Address{Email: email, Name: v[email]}
		}), nil
	case Address:
		return []Address{v}, nil
	case []Address:
		return append([]Address(nil), v...), nil
	default:
		return nil, fmt.Errorf("unsupported address input type %T", value)
	}
}

// AddressBook holds the four address sets plus the single-address origin
// and disposition fields of a message under composition.
type AddressBook struct {
	To   AddressList
	Cc   AddressList
	Bcc  AddressList
	From AddressList

	Sender      Address
	ReturnPath  Address
	ReadReceipt Address
	ReplyTo     Address

	valid func(string) bool
}

// NewAddressBook creates an empty book. When valid is non-nil every email is
// checked with it and rejected entries are dropped.
func NewAddressBook(valid func(string) bool) *AddressBook {
	return &AddressBook{valid: valid}
}

// List returns the address set for kind or one of its aliases, or nil for
// an unknown kind.
func (b *AddressBook) List(kind Kind) *AddressList {
	switch ParseKind(string(kind)) {
	case KindTo:
		return &b.To
	case KindCc:
		return &b.Cc
	case KindBcc:
		return &b.Bcc
	case KindFrom:
		return &b.From
	default:
		return nil
	}
}

// Add stores entries in the set selected by kind. A non-empty nameOverride
// replaces the name of every entry. Entries that fail validation are skipped
// and returned in dropped.
func (b *AddressBook) Add(kind Kind, entries []Address, nameOverride string) (dropped []string, err error) {
	list := b.List(kind)
	if list == nil {
		return nil, fmt.Errorf("unknown address kind %q", kind)
	}

	for _, entry := range entries {
		if !b.accept(entry.Email) {
			dropped = append(dropped, entry.Email)
			continue
		}
		name := entry.Name
		if nameOverride != "" {
			name = nameOverride
		}
		list.Add(entry.Email, name)
	}
	return dropped, nil
}

// SetSender sets the Sender address. It returns false and leaves the field
// untouched when the email fails validation.
func (b *AddressBook) SetSender(email, name string) bool {
	return b.setSingle(&b.Sender, email, name)
}

// SetReturnPath sets the bounce address.
func (b *AddressBook) SetReturnPath(email string) bool {
	return b.setSingle(&b.ReturnPath, email, "")
}

// SetReadReceipt sets the Disposition-Notification-To address.
func (b *AddressBook) SetReadReceipt(email string) bool {
	return b.setSingle(&b.ReadReceipt, email, "")
}

// SetReplyTo sets the Reply-To address.
func (b *AddressBook) SetReplyTo(email, name string) bool {
	return b.setSingle(&b.ReplyTo, email, name)
}

// HasRecipients reports whether any of to, cc or bcc is non-empty.
func (b *AddressBook) HasRecipients() bool {
	return b.To.Len()+b.Cc.Len()+b.Bcc.Len() > 0
}

// ResetRecipients clears to, cc and bcc.
func (b *AddressBook) ResetRecipients() {
	b.To.Reset()
	b.Cc.Reset()
	b.Bcc.Reset()
}

// Reset clears to, cc, bcc and from.
func (b *AddressBook) Reset() {
	b.ResetRecipients()
	b.From.Reset()
}

func (b *AddressBook) setSingle(dst *Address, email, name string) bool {
	if email == "" || !b.accept(email) {
		return false
	}
	*dst = Address{Email: email, Name: name}
	return true
}

func (b *AddressBook) accept(email string) bool {
	if email == "" {
		return false
	}
	return b.valid == nil || b.valid(email)
}
