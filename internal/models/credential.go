package models

// Credentials is the plaintext shape sealed inside a Site's
// CredentialCiphertext (spec.md section 3). It exists only transiently
// in worker memory after Vault.Open; never logged, never emitted
// through any external interface (invariant I4).
type Credentials struct {
	Username string            `json:"username,omitempty"`
	Password string            `json:"password,omitempty"`
	APIKey   string            `json:"api_key,omitempty"`
	Token    string            `json:"token,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Zero overwrites every field of Credentials with its zero value. The
// Scrape Runner defers this call until its Run returns, matching spec.md section 4.1 ("plaintext is zeroed after
// use where the language permits").
func (c *Credentials) Zero() {
	if c == nil {
		return
	}
	c.Username = ""
	c.Password = ""
	c.APIKey = ""
	c.Token = ""
	for k := range c.Extra {
		c.Extra[k] = ""
		delete(c.Extra, k)
	}
}

// Fields returns every non-empty plaintext credential value: the
// substrings that must never reach a log line (spec.md section 8,
// property 4).
func (c *Credentials) Fields() []string {
	if c == nil {
		return nil
	}
	var out []string
	for _, v := range []string{c.Username, c.Password, c.APIKey, c.Token} {
		if v != "" {
			out = append(out, v)
		}
	}
	for _, v := range c.Extra {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
