package moduleplayer

// Allocator is the §6.3 memory allocator hook. Go has no swappable global
// heap, so this is a function-pointer shim over make() rather than a
// wrapped C allocator. SetAllocator stores a replacement on the Default
// context, but the loaders, player and mixer allocate with make directly
// and never call these hooks.
type Allocator struct {
	Alloc       func(size int) []byte
	ZeroedAlloc func(size int) []byte
	Free        func([]byte)
}

func defaultAllocator() Allocator {
	return Allocator{
		Alloc:       func(size int) []byte { return make([]byte, size) },
		ZeroedAlloc: func(size int) []byte { return make([]byte, size) },
		Free:        func([]byte) {},
	}
}

// SetAllocator overrides the package-level Default context's allocator hook.
// Must be called before the first LoadFromData, matching the C contract.
func SetAllocator(a Allocator) {
	Default.alloc = a
}
