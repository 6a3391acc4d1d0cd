package core

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// NameAllocator supplies the random parts of rendering: auxiliary sheet
// names, sheet protection tokens and the position of hidden option blocks.
// Tests inject a deterministic implementation.
type NameAllocator interface {
	// SheetName returns a fresh auxiliary sheet name.
	SheetName() string
	// Token returns a sheet protection password.
	Token() string
	// Intn returns a value in [0, n).
	Intn(n int) int
}

type randomAllocator struct{}

// RandomAllocator draws names from UUIDs and positions from math/rand.
func RandomAllocator() NameAllocator {
	return randomAllocator{}
}

func (randomAllocator) SheetName() string {
	return "dic_" + simpleUUID()[:16]
}

func (randomAllocator) Token() string {
	return simpleUUID()
}

func (randomAllocator) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.IntN(n)
}

func simpleUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
