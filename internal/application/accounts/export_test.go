package accounts

// SwapCompareHash replaces the bcrypt comparison until restore is called.
func SwapCompareHash(f func(hash, password []byte) error) (restore func()) {
	prev := compareHash
	compareHash = f
	return func() { compareHash = prev }
}
