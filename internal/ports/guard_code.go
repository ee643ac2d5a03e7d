package ports

// GuardCodeProvider derives a second-factor code from a shared secret.
type GuardCodeProvider interface {
	GenerateCode(sharedSecret string) (string, error)
}
