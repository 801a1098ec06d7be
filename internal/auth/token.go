package auth

import "context"

// StaticToken is a fixed bearer credential such as the inference API key.
type StaticToken string

// Token implements core.TokenSource.
func (t StaticToken) Token(_ context.Context) (string, error) {
	return string(t), nil
}
