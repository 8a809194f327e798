package auth

// FormatLogLine exposes the default logger line format to tests
var FormatLogLine = formatLogLine

// DummyHashOf exposes the hash CompareMissing burns a compare against
func DummyHashOf(v *BcryptVerifier) []byte {
	return v.dummyHash
}
