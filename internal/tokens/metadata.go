package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"alpha-finder/internal/solana"
)

// MetaplexProgramID is the Metaplex Token Metadata program.
const MetaplexProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

const metadataV1Key = 4

var (
	// ErrNoMetadata is returned when the mint has no readable Metaplex metadata account.
	ErrNoMetadata = errors.New("token metadata not found")
	// ErrBadURI is returned with a partial Metadata when name and symbol
	// decoded but the uri field did not.
	ErrBadURI = errors.New("token metadata uri unreadable")
)

// Metadata is the subset of the Metaplex metadata account the registrar keeps.
type Metadata struct {
	Name   string
	Symbol string
	URI    string
}

// MetadataPDA derives the Metaplex metadata account of a mint.
// Seeds: ["metadata", program id, mint].
func MetadataPDA(mint string) (string, error) {
	mintKey, err := decodeKey(mint)
	if err != nil {
		return "", err
	}
	program, err := decodeKey(MetaplexProgramID)
	if err != nil {
		return "", err
	}
	addr, _, err := FindProgramAddress([][]byte{[]byte("metadata"), program, mintKey}, program)
	return addr, err
}

// FindProgramAddress searches bumps from 255 down for the first
// sha256(seeds || bump || program || "ProgramDerivedAddress") that is off the ed25519 curve.
func FindProgramAddress(seeds [][]byte, program []byte) (string, uint8, error) {
	for bump := 255; bump > 0; bump-- {
		h := sha256.New()
		for _, s := range seeds {
			h.Write(s)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program)
		h.Write([]byte("ProgramDerivedAddress"))
		sum := h.Sum(nil)

		if !onCurve(sum) {
			return base58.Encode(sum), uint8(bump), nil
		}
	}
	return "", 0, errors.New("no viable bump seed")
}

func onCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

func decodeKey(addr string) ([]byte, error) {
	if err := solana.ValidateAddress(addr); err != nil {
		return nil, err
	}
	return base58.Decode(addr)
}

// ParseMetadata decodes name, symbol and uri from a MetadataV1 account.
// Layout: key u8 | update authority [32] | mint [32] | name | symbol | uri,
// strings are borsh (u32 LE length + bytes) padded with NULs.
func ParseMetadata(data []byte) (Metadata, error) {
	if len(data) < 69 || data[0] != metadataV1Key {
		return Metadata{}, fmt.Errorf("not a metadata v1 account: %w", ErrNoMetadata)
	}

	r := borshReader{buf: data, off: 65}
	name, err := r.string(32)
	if err != nil {
		return Metadata{}, fmt.Errorf("name: %w", err)
	}
	symbol, err := r.string(10)
	if err != nil {
		return Metadata{}, fmt.Errorf("symbol: %w", err)
	}
	uri, err := r.string(200)
	if err != nil {
		return Metadata{Name: name, Symbol: symbol}, fmt.Errorf("uri: %v: %w", err, ErrBadURI)
	}

	return Metadata{Name: name, Symbol: symbol, URI: uri}, nil
}

type borshReader struct {
	buf []byte
	off int
}

// string reads a borsh string of at most limit runes (limit*4 bytes).
func (r *borshReader) string(limit int) (string, error) {
	if r.off+4 > len(r.buf) {
		return "", errors.New("truncated length")
	}
	n := int(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	if n > limit*4 || r.off+n > len(r.buf) {
		return "", fmt.Errorf("invalid length %d", n)
	}
	s := strings.TrimRight(string(r.buf[r.off:r.off+n]), "\x00")
	r.off += n
	return strings.TrimSpace(s), nil
}

// MetadataSource reads Metaplex metadata over RPC.
type MetadataSource struct {
	rpc solana.RPCClient
}

// NewMetadataSource creates a MetadataSource.
func NewMetadataSource(rpc solana.RPCClient) *MetadataSource {
	return &MetadataSource{rpc: rpc}
}

// Fetch returns the mint's metadata or ErrNoMetadata. ErrBadURI comes with
// the name and symbol filled in.
func (s *MetadataSource) Fetch(ctx context.Context, mint string) (Metadata, error) {
	pda, err := MetadataPDA(mint)
	if err != nil {
		return Metadata{}, fmt.Errorf("derive metadata address: %w", err)
	}

	info, err := s.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		return Metadata{}, fmt.Errorf("get metadata account: %w", err)
	}
	if info == nil {
		return Metadata{}, ErrNoMetadata
	}

	raw, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return Metadata{}, fmt.Errorf("decode metadata account: %w", err)
	}
	return ParseMetadata(raw)
}
