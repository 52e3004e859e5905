package resource

import "github.com/google/uuid"

// Products describes the products table. Keys are UUIDs generated by Create.
func Products() Definition[uuid.UUID] {
	return Definition[uuid.UUID]{
		Name:        "products",
		Singular:    "product",
		Label:       "Product",
		PluralLabel: "Products",
		Columns: []Column{
			{Name: "name", Type: String, Required: true, Rule: "max=200"},
			{Name: "description", Type: String, Rule: "max=2000"},
			{Name: "quantity", Type: Integer, Required: true, Rule: "min=0,max=2147483647"}, // INTEGER column
		},
		RequiredMessage: "Name and Quantity are required",
		Key:             UUIDKey(),
	}
}
