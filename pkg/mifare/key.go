package mifare

import (
	"bufio"
	_ "embed"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// KeySize is the length of a MIFARE Classic sector key in bytes.
const KeySize = 6

// Key is a 6-byte sector key. Two keys are equal iff their bytes match.
type Key [KeySize]byte

// ParseKey decodes a 12-character hex key.
func ParseKey(s string) (Key, error) {
	var k Key
	s = strings.TrimSpace(s)
	if len(s) != 2*KeySize {
		return k, fmt.Errorf("key must be %d hex chars, got %d", 2*KeySize, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("invalid hex key: %v", err)
	}
	copy(k[:], b)
	return k, nil
}

func (k Key) String() string {
	return hexUpper(k[:])
}

// KeyType selects which of the two trailer keys authenticates a command.
type KeyType byte

const (
	KeyA KeyType = 0x60
	KeyB KeyType = 0x61
)

func (t KeyType) String() string {
	if t == KeyB {
		return "B"
	}
	return "A"
}

//go:embed default_keys.dic
var defaultDictionary string

// DefaultDictionary returns the built-in list of well-known keys.
func DefaultDictionary() []Key {
	keys, err := LoadDictionary(strings.NewReader(defaultDictionary))
	if err != nil {
		panic(fmt.Sprintf("embedded dictionary invalid: %v", err))
	}
	return keys
}

// LoadDictionary reads a wordlist: one hex key per line. Blank lines, lines
// starting with '#' and anything after the first field are ignored.
// Duplicates are dropped, keeping the first occurrence.
func LoadDictionary(r io.Reader) ([]Key, error) {
	var keys []Key
	seen := make(map[Key]bool)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		field := strings.Fields(line)[0]
		if i := strings.IndexByte(field, '#'); i >= 0 {
			field = field[:i]
		}
		key, err := ParseKey(field)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// LoadDictionaryFile loads a wordlist from disk.
func LoadDictionaryFile(path string) ([]Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	keys, err := LoadDictionary(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return keys, nil
}
