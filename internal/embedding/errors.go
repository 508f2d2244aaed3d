package embedding

import "fmt"

func errCount(want, got int) error {
	return fmt.Errorf("expected %d embeddings, got %d", want, got)
}

func errMissingIndex(i int) error {
	return fmt.Errorf("provider response missing embedding for index %d", i)
}
