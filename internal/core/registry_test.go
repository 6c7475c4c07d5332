package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register(Importer{Key: "zeta", Schema: Schema{{Name: "a"}}})
	Register(Importer{Key: "alpha", Table: "alpha_rows", Schema: contactSchema()})

	imp, ok := Get("zeta")
	assert.True(t, ok)
	assert.Equal(t, "zeta", imp.Table, "table defaults to key")

	_, ok = Get("missing")
	assert.False(t, ok)

	all := All()
	assert.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Key)

	fields := all[0].Fields()
	assert.Len(t, fields, 3)
	assert.Equal(t, "email", fields[1].Name)
	assert.Equal(t, FieldEmail, fields[1].Type)
	assert.True(t, fields[1].Required)
}

func TestRegister_Panics(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	assert.Panics(t, func() { Register(Importer{}) })

	Register(Importer{Key: "dup"})
	assert.Panics(t, func() { Register(Importer{Key: "dup"}) })

	assert.Panics(t, func() {
		Register(Importer{Key: "twice", Schema: Schema{{Name: "a"}, {Name: "a"}}})
	})
}
