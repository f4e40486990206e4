// Command secmemdemo exercises the protected heap from the command line:
// it allocates a batch of buffers and keys, drives them through their
// normal lifecycle, and prints the resulting allocator statistics.
package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/brineshell/secmem"
	"github.com/brineshell/secmem/internal/memguard"
)

var (
	flagFormat     = flag.String("format", "text", "Output format: text, yaml")
	flagBuffers    = flag.Int("buffers", 64, "Number of scratch buffers to allocate and free")
	flagBufferSize = flag.Int("buffer-size", 32, "Bytes per scratch buffer")
	flagKeys       = flag.Int("keys", 8, "Number of keys to seal and exercise")
	flagKeySize    = flag.Int("key-size", 32, "Bytes per key")
	flagConfig     = flag.String("config", "", "Path to a YAML config file (see memguard.Config)")
)

func main() {
	flag.Parse()

	cfg := memguard.DefaultConfig()
	if *flagConfig != "" {
		loaded, err := memguard.LoadConfig(*flagConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	alloc := secmem.NewPrivateAllocator(cfg.PageCacheLimit)
	keyAlloc := secmem.NewPrivateKeyAllocator()

	if cfg.JanitorSchedule != "" {
		j, err := memguard.NewJanitor(alloc.Pool(), cfg.JanitorSchedule)
		if err != nil {
			fmt.Fprintln(os.Stderr, "start janitor:", err)
			os.Exit(1)
		}
		j.Start()
		defer j.Stop()
	}

	if err := runBuffers(alloc, *flagBuffers, *flagBufferSize); err != nil {
		fmt.Fprintln(os.Stderr, "buffer pass:", err)
		os.Exit(1)
	}
	if err := runKeys(keyAlloc, *flagKeys, *flagKeySize); err != nil {
		fmt.Fprintln(os.Stderr, "key pass:", err)
		os.Exit(1)
	}

	stats := alloc.Statistics()
	switch *flagFormat {
	case "yaml":
		b, err := yaml.Marshal(stats)
		if err != nil {
			fmt.Fprintln(os.Stderr, "marshal stats:", err)
			os.Exit(1)
		}
		os.Stdout.Write(b)
	default:
		fmt.Println(stats.String())
	}
}

func runBuffers(alloc *memguard.ChunkAllocator, n, size int) error {
	for i := 0; i < n; i++ {
		buf, err := secmem.NewBufferWithAllocator[byte](alloc, size)
		if err != nil {
			return fmt.Errorf("allocate buffer %d: %w", i, err)
		}
		for j := 0; j < size; j++ {
			buf.Set(j, byte(i+j))
		}
		if err := buf.Close(); err != nil {
			return fmt.Errorf("close buffer %d: %w", i, err)
		}
	}
	return nil
}

func runKeys(keyAlloc *memguard.KeyAllocator, n, size int) error {
	for i := 0; i < n; i++ {
		k, err := secmem.NewKeyRandomWithAllocator[byte](keyAlloc, size)
		if err != nil {
			return fmt.Errorf("allocate key %d: %w", i, err)
		}
		if err := k.ReadWith(func(view []byte) error {
			_ = view[0]
			return nil
		}); err != nil {
			return fmt.Errorf("read key %d: %w", i, err)
		}
		if err := k.WriteWith(func(view []byte) error {
			for j := range view {
				view[j] ^= 0xff
			}
			return nil
		}); err != nil {
			return fmt.Errorf("write key %d: %w", i, err)
		}
		if err := k.Close(); err != nil {
			return fmt.Errorf("close key %d: %w", i, err)
		}
	}
	return nil
}
