package chat

// Accumulate folds one streamed fragment into the text received so far.
func Accumulate(full, fragment string) string {
	return full + fragment
}
