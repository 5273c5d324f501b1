package core

import (
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// CodeAlphabet omits I, O, 0 and 1.
	CodeAlphabet     = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeSuffixLength = 8
)

var activationCodePattern = regexp.MustCompile(`^(PREMIUM|PRO|TEST)-[A-HJ-NP-Z2-9]{8}$`)

// ValidActivationCode reports whether code has the issued shape.
func ValidActivationCode(code string) bool {
	return activationCodePattern.MatchString(code)
}

type CodeGenerator struct {
	Reader io.Reader
}

// NewCodeGenerator uses crypto/rand when reader is nil.
func NewCodeGenerator(reader io.Reader) *CodeGenerator {
	return &CodeGenerator{Reader: reader}
}

func (g *CodeGenerator) Generate(plan Plan) (string, error) {
	prefix := strings.ToUpper(strings.TrimSpace(plan.CodePrefix))
	if prefix == "" {
		return "", badInput("core: plan code prefix is required", map[string]any{"tier": string(plan.Tier)})
	}
	reader := io.Reader(rand.Reader)
	if g != nil && g.Reader != nil {
		reader = g.Reader
	}
	buf := make([]byte, CodeSuffixLength)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return "", WrapError(err, goerrors.CategoryInternal, "core: read random source", http.StatusInternalServerError, ErrorInternal, nil)
	}
	// 256 is a multiple of the alphabet size, so the modulo is unbiased.
	suffix := make([]byte, CodeSuffixLength)
	for i, b := range buf {
		suffix[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}
	return fmt.Sprintf("%s-%s", prefix, suffix), nil
}

var _ CodeSource = (*CodeGenerator)(nil)
