package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashTokenIsStable(t *testing.T) {
	tok := NewToken()
	assert.Len(t, tok, 32)
	assert.Equal(t, HashToken(tok), HashToken(" "+tok+"\n"))
	assert.NotEqual(t, HashToken(tok), HashToken(NewToken()))
	assert.Len(t, HashToken(tok), 64)
}
