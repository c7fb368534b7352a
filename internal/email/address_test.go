package email

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func validOnly(bad ...string) func(string) bool {
	return func(s string) bool {
		for _, b := range bad {
			if s == b {
				return false
			}
		}
		return true
	}
}

func TestAddressList_LastNameWins(t *testing.T) {
	t.Parallel()

	var l AddressList
	l.Add("a@example.com", "First")
	l.Add("b@example.com", "")
	l.Add("a@example.com", "Second")

	want := []Address{
		{Email: "a@example.com", Name: "Second"},
		{Email: "b@example.com"},
	}
	if diff := cmp.Diff(want, l.Addresses()); diff != "" {
		t.Errorf("Addresses() mismatch (-want +got):\n%s", diff)
	}
	if l.Len() != 2 {
		t.Errorf("Len(): got %d, want 2", l.Len())
	}
}

func TestAddressList_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	var l AddressList
	l.Add("a@example.com", "A")
	c := l.Clone()
	c.Add("b@example.com", "B")
	c.Rename("Z")

	if l.Len() != 1 {
		t.Errorf("original Len(): got %d, want 1", l.Len())
	}
	if name, _ := l.Name("a@example.com"); name != "A" {
		t.Errorf("original name: got %q, want %q", name, "A")
	}
}

func TestEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input any
		want  []Address
	}{
		{"scalar", "a@example.com", []Address{{Email: "a@example.com"}}},
		{"empty scalar", "", nil},
		{"nil", nil, nil},
		{"bare list", []string{"a@example.com", "", "b@example.com"}, []Address{{Email: "a@example.com"}, {Email: "b@example.com"}}},
		{
			"email to name map",
			map[string]string{"b@example.com": "Bee", "a@example.com": "Ay"},
			[]Address{{Email: "a@example.com", Name: "Ay"}, {Email: "b@example.com", Name: "Bee"}},
		},
		{"address", Address{Email: "a@example.com", Name: "A"}, []Address{{Email: "a@example.com", Name: "A"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Entries(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Entries() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := Entries(42); err == nil {
		t.Error("expected error for unsupported input type")
	}
}

func TestAddressBook_AddScalarWithName(t *testing.T) {
	t.Parallel()

	b := NewAddressBook(nil)
	if _, err := b.Add(KindTo, []Address{{Email: "a@example.com"}}, "Alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := b.Add(KindCc, []Address{{Email: "c@example.com"}}, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if name, _ := b.To.Name("a@example.com"); name != "Alice" {
		t.Errorf("to name: got %q, want %q", name, "Alice")
	}
	if name, ok := b.Cc.Name("c@example.com"); !ok || name != "" {
		t.Errorf("cc entry: got (%q, %v), want bare entry", name, ok)
	}
}

func TestAddressBook_NameOverrideAppliesToAll(t *testing.T) {
	t.Parallel()

	b := NewAddressBook(nil)
	entries, _ := Entries(map[string]string{"a@example.com": "X", "b@example.com": "Y"})
	if _, err := b.Add(KindTo, entries, "Z"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Address{
		{Email: "a@example.com", Name: "Z"},
		{Email: "b@example.com", Name: "Z"},
	}
	if diff := cmp.Diff(want, b.To.Addresses()); diff != "" {
		t.Errorf("to mismatch (-want +got):\n%s", diff)
	}
}

func TestAddressBook_InvalidEntriesDropped(t *testing.T) {
	t.Parallel()

	b := NewAddressBook(validOnly("bad"))
	dropped, err := b.Add(KindBcc, []Address{{Email: "ok@example.com"}, {Email: "bad"}}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]string{"bad"}, dropped); diff != "" {
		t.Errorf("dropped mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ok@example.com"}, b.Bcc.Emails()); diff != "" {
		t.Errorf("bcc mismatch (-want +got):\n%s", diff)
	}
}

func TestAddressBook_UnknownKind(t *testing.T) {
	t.Parallel()

	b := NewAddressBook(nil)
	if _, err := b.Add(Kind("reply"), []Address{{Email: "a@example.com"}}, ""); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := map[string]Kind{
		"to":              KindTo,
		"Receiver":        KindTo,
		"addressee":       KindTo,
		"carboncopy":      KindCc,
		"BlindCarbonCopy": KindBcc,
		"hidden":          KindBcc,
		" from ":          KindFrom,
		"bounce":          KindReturnPath,
		"returnpath":      KindReturnPath,
		"receipt":         KindReadReceipt,
		"sender":          KindSender,
		"reply":           Kind("reply"),
	}
	for name, want := range tests {
		if got := ParseKind(name); got != want {
			t.Errorf("ParseKind(%q): got %q, want %q", name, got, want)
		}
	}
	if !KindReadReceipt.Single() || KindBcc.Single() {
		t.Error("Single() misclassified kinds")
	}
}

func TestAddressBook_AddByAlias(t *testing.T) {
	t.Parallel()

	b := NewAddressBook(nil)
	b.Add(Kind("addressee"), []Address{{Email: "to@example.com"}}, "")
	b.Add(Kind("carboncopy"), []Address{{Email: "cc@example.com"}}, "")
	b.Add(Kind("hidden"), []Address{{Email: "bcc@example.com"}}, "")

	if diff := cmp.Diff([]string{"to@example.com"}, b.To.Emails()); diff != "" {
		t.Errorf("to mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"cc@example.com"}, b.Cc.Emails()); diff != "" {
		t.Errorf("cc mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"bcc@example.com"}, b.Bcc.Emails()); diff != "" {
		t.Errorf("bcc mismatch (-want +got):\n%s", diff)
	}
	if _, err := b.Add(KindSender, []Address{{Email: "s@example.com"}}, ""); err == nil {
		t.Error("expected error adding a list entry to a single-address kind")
	}
}

func TestAddressBook_SingleSettersSilentOnInvalid(t *testing.T) {
	t.Parallel()

	b := NewAddressBook(validOnly("bad"))

	if !b.SetSender("s@example.com", "Sender") {
		t.Fatal("expected valid sender to be accepted")
	}
	if b.SetSender("bad", "Other") {
		t.Error("expected invalid sender to be rejected")
	}
	if b.Sender != (Address{Email: "s@example.com", Name: "Sender"}) {
		t.Errorf("sender changed after rejected set: %+v", b.Sender)
	}

	if b.SetReturnPath("bad") || !b.ReturnPath.IsZero() {
		t.Error("expected invalid return path to be a no-op")
	}
	if !b.SetReadReceipt("r@example.com") || b.ReadReceipt.Email != "r@example.com" {
		t.Error("expected read receipt to be set")
	}
	if !b.SetReplyTo("reply@example.com", "Reply") || b.ReplyTo.Name != "Reply" {
		t.Error("expected reply-to to be set")
	}
}

func TestAddressBook_Reset(t *testing.T) {
	t.Parallel()

	b := NewAddressBook(nil)
	for _, k := range []Kind{KindTo, KindCc, KindBcc, KindFrom} {
		b.Add(k, []Address{{Email: string(k) + "@example.com"}}, "")
	}

	b.ResetRecipients()
	if b.HasRecipients() {
		t.Error("expected no recipients after ResetRecipients")
	}
	if b.From.Len() != 1 {
		t.Errorf("from Len(): got %d, want 1", b.From.Len())
	}

	b.Reset()
	if b.From.Len() != 0 {
		t.Errorf("from Len() after Reset: got %d, want 0", b.From.Len())
	}
}

func TestAddress_String(t *testing.T) {
	t.Parallel()

	if got := (Address{Email: "a@example.com"}).String(); got != "a@example.com" {
		t.Errorf("bare: got %q", got)
	}
	if got := (Address{Email: "a@example.com", Name: "Alice"}).String(); got != `"Alice" <a@example.com>` {
		t.Errorf("named: got %q", got)
	}
}
