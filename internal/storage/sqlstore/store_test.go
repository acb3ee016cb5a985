package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebindDollar(t *testing.T) {
	assert.Equal(t, "SELECT 1", RebindDollar("SELECT 1"))
	assert.Equal(t,
		"UPDATE messages SET status = $1 WHERE id = $2 AND status IN ($3, $4)",
		RebindDollar("UPDATE messages SET status = ? WHERE id = ? AND status IN (?, ?)"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\_b\%c\\d`, escapeLike(`a_b%c\d`))
}
