package importers

import "github.com/JonMunkholm/sheetimport/internal/core"

// ContactSchema is the contacts importer's schema.
var ContactSchema = core.Schema{
	{Name: "name", Required: true, Aliases: []string{"full name", "contact", "contact name"}},
	{Name: "email", Required: true, Type: core.FieldEmail, Aliases: []string{"e-mail", "email address", "mail"}, Normalizer: NormalizeEmail},
	{Name: "phone", Aliases: []string{"phone number", "telephone", "mobile"}, Normalizer: NormalizePhone},
	{Name: "company", Aliases: []string{"organization", "organisation", "account"}},
	{Name: "country", Aliases: []string{"country code"}, Normalizer: NormalizeCode},
	{Name: "subscribed", Type: core.FieldBool, Aliases: []string{"opt in", "newsletter"}},
}

func init() {
	core.Register(core.Importer{
		Key:       "contacts",
		Label:     "Contacts",
		Table:     "contacts",
		Schema:    ContactSchema,
		UniqueKey: []string{"email"},
	})
}
