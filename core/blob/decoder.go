// Package blob implements the EIP-4844 field-element encoding the
// derivation pipeline's batch carriers use inside a blob sidecar: 4096
// 32-byte field elements, each carrying at most 31 payload bytes, with a
// single 0x80 terminator byte and zero padding to the blob's end.
package blob

import "errors"

const (
	// FieldElementsPerBlob is the EIP-4844 blob size in 32-byte elements.
	FieldElementsPerBlob = 4096
	// FieldElementSize is the size, in bytes, of one field element.
	FieldElementSize = 32
	// BytesPerFieldElement is the usable payload capacity of one element:
	// the leading byte must be zero (canonical field-element form), so at
	// most 31 bytes of payload fit.
	BytesPerFieldElement = FieldElementSize - 1
	// BlobSize is the total byte length of one blob.
	BlobSize = FieldElementsPerBlob * FieldElementSize
	// MaxBlobPayload is the largest payload a single blob can carry: the
	// usable capacity is FieldElementsPerBlob*31 minus one byte for the
	// 0x80 terminator.
	MaxBlobPayload = FieldElementsPerBlob*BytesPerFieldElement - 1

	terminator = 0x80
)

var (
	// ErrMalformedFieldElement is returned when a field element's leading
	// byte is not zero, violating the canonical field-element form.
	ErrMalformedFieldElement = errors.New("blob: field element boundary byte is non-zero")
	// ErrMissingTerminator is returned when no 0x80 terminator byte is
	// found before the end of the blob.
	ErrMissingTerminator = errors.New("blob: missing 0x80 terminator")
	// ErrNonZeroPadding is returned when bytes after the terminator are
	// not all zero.
	ErrNonZeroPadding = errors.New("blob: non-zero byte after terminator")
	// ErrPayloadTooLarge is returned by Encode when the payload does not
	// fit in one blob.
	ErrPayloadTooLarge = errors.New("blob: payload exceeds single-blob capacity")
	// ErrWrongBlobSize is returned when the input is not exactly BlobSize
	// bytes.
	ErrWrongBlobSize = errors.New("blob: input is not exactly one blob in size")
)

// Decode extracts the logical payload from a canonical EIP-4844 blob. The
// first 0x80 byte ends the payload, so Decode inverts Encode only for
// payloads that contain no 0x80 byte. Pure and deterministic; never mutates
// the input.
func Decode(blobBytes []byte) ([]byte, error) {
	if len(blobBytes) != BlobSize {
		return nil, ErrWrongBlobSize
	}

	out := make([]byte, 0, MaxBlobPayload)
	terminated := false

	for i := 0; i < FieldElementsPerBlob; i++ {
		element := blobBytes[i*FieldElementSize : (i+1)*FieldElementSize]
		if element[0] != 0x00 {
			return nil, ErrMalformedFieldElement
		}
		payload := element[1:]

		if terminated {
			for _, b := range payload {
				if b != 0x00 {
					return nil, ErrNonZeroPadding
				}
			}
			continue
		}

		for j, b := range payload {
			if b == terminator {
				terminated = true
				for _, rest := range payload[j+1:] {
					if rest != 0x00 {
						return nil, ErrNonZeroPadding
					}
				}
				break
			}
			out = append(out, b)
		}
	}

	if !terminated {
		return nil, ErrMissingTerminator
	}

	return out, nil
}

// Encode places payload into a single canonical EIP-4844 blob: a mandatory
// 0x00 prefix at every field-element boundary, the payload bytes, exactly
// one 0x80 terminator immediately after the last payload byte, and zero
// padding to the end of the blob.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxBlobPayload {
		return nil, ErrPayloadTooLarge
	}

	out := make([]byte, BlobSize)
	stream := make([]byte, 0, FieldElementsPerBlob*BytesPerFieldElement)
	stream = append(stream, payload...)
	stream = append(stream, terminator)
	// The remainder of the logical stream is implicitly zero; len(stream)
	// already accounts for every payload byte plus the terminator.

	for i := 0; i < FieldElementsPerBlob; i++ {
		start := i * BytesPerFieldElement
		end := start + BytesPerFieldElement
		var chunk []byte
		if start < len(stream) {
			if end > len(stream) {
				end = len(stream)
			}
			chunk = stream[start:end]
		}
		elementStart := i * FieldElementSize
		// out[elementStart] stays 0x00 (the mandatory boundary byte).
		copy(out[elementStart+1:elementStart+FieldElementSize], chunk)
	}

	return out, nil
}
