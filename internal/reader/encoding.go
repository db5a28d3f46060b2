package reader

import (
	"bytes"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/open-logtail/logtailcore/cfg"
)

// DecodeResult is the outcome of converting a raw read buffer to UTF-8:
// Text is the decoded bytes ready for line-framing, and ConsumedSource is
// how many bytes of the original (pre-conversion) buffer those decoded
// bytes correspond to — spec.md §4.6.4's "record byte mapping so that
// advancement in the source file is by the pre-conversion length".
type DecodeResult struct {
	Text           []byte
	ConsumedSource int
}

// DecodeBuffer converts raw (freshly read from the file, in enc) to UTF-8,
// per spec.md §4.6.4. UTF-8 input is returned unchanged with a 1:1 byte
// mapping. GBK input is converted line-by-line so a multi-byte character
// split across the end of raw is never fed to the decoder: that trailing
// partial line is left undecoded and excluded from ConsumedSource,
// matching §9's "GBK decode of a buffer ending mid-character leaves the
// partial character in the file and advances last-offset only past the
// last complete line."
func DecodeBuffer(raw []byte, enc cfg.Encoding) (DecodeResult, error) {
	if enc != cfg.EncodingGBK {
		return DecodeResult{Text: raw, ConsumedSource: len(raw)}, nil
	}

	lastNL := bytes.LastIndexByte(raw, '\n')
	if lastNL < 0 {
		// No complete line at all yet; nothing safe to decode.
		return DecodeResult{}, nil
	}
	sourcePrefix := raw[:lastNL+1]

	decoded, _, err := transform.Bytes(simplifiedchinese.GBK.NewDecoder(), sourcePrefix)
	if err != nil {
		return DecodeResult{}, err
	}
	return DecodeResult{Text: decoded, ConsumedSource: len(sourcePrefix)}, nil
}
