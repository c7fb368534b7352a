package mailer

import "github.com/shineum/mailkit/internal/email"

// Version is the engine release reported in the X-Engine header.
const Version = "1.4.0"

// Ident is the X-Engine identification header added to every message.
var Ident = email.Header{
	Name:  "Engine",
	Value: "mailkit",
	Params: []email.HeaderParam{
		{Name: "author", Value: "shineum"},
		{Name: "version", Value: Version},
	},
}
