package importers

import "github.com/JonMunkholm/sheetimport/internal/core"

// ProductCategories are the accepted values of the category field.
var ProductCategories = []string{"hardware", "software", "service", "subscription"}

// ProductSchema is the products importer's schema.
var ProductSchema = core.Schema{
	{Name: "sku", Required: true, Aliases: []string{"product code", "item number", "part number"}, Normalizer: NormalizeCode},
	{Name: "name", Required: true, Aliases: []string{"product name", "title", "description"}},
	{Name: "price", Type: core.FieldNumeric, Aliases: []string{"list price", "unit price", "amount"}},
	{Name: "category", Type: core.FieldEnum, EnumValues: ProductCategories, Normalizer: NormalizeKeyword},
	{Name: "active", Type: core.FieldBool, Aliases: []string{"enabled", "is active"}},
	{Name: "released", Type: core.FieldDate, Aliases: []string{"release date", "launch date"}},
}

func init() {
	core.Register(core.Importer{
		Key:            "products",
		Label:          "Products",
		Table:          "products",
		Schema:         ProductSchema,
		UniqueKey:      []string{"sku"},
		SkipDuplicates: true,
	})
}
