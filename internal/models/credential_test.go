package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentials_Fields_CollectsNonEmptyValues(t *testing.T) {
	c := &Credentials{
		Username: "alice",
		Password: "s3cret",
		Extra:    map[string]string{"csrf_token": "abc123"},
	}
	fields := c.Fields()
	assert.ElementsMatch(t, []string{"alice", "s3cret", "abc123"}, fields)
}

func TestCredentials_Fields_NilReceiverReturnsNil(t *testing.T) {
	var c *Credentials
	assert.Nil(t, c.Fields())
}

func TestCredentials_Zero_ClearsEveryField(t *testing.T) {
	c := &Credentials{
		Username: "alice",
		Password: "s3cret",
		APIKey:   "key",
		Token:    "tok",
		Extra:    map[string]string{"csrf_token": "abc123"},
	}
	c.Zero()
	assert.Empty(t, c.Fields())
	assert.Empty(t, c.Extra)
}

func TestCredentials_Zero_NilReceiverIsSafe(t *testing.T) {
	var c *Credentials
	assert.NotPanics(t, func() { c.Zero() })
}
