package signer

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// KeyIDScheme is the chain namespace prefix of signature key ids.
const KeyIDScheme = "eip155"

// SignatureInput is the parsed Signature-Input descriptor.
type SignatureInput struct {
	// Components are the covered components, in order.
	Components []string

	// Created is the signature timestamp (Unix seconds).
	Created int64

	// Nonce is the replay nonce.
	Nonce string

	// KeyID identifies the signer: eip155:{chainId}:{address}.
	KeyID string

	// Params is the raw parameter string after "sig1=", fed back into
	// the signature base so every parameter is covered by the signature.
	Params string
}

var (
	componentListRx = regexp.MustCompile(`^\(([^)]*)\)`)
	createdRx       = regexp.MustCompile(`;created=(\d+)`)
	nonceRx         = regexp.MustCompile(`;nonce="([^"]*)"`)
	keyIDRx         = regexp.MustCompile(`;keyid="([^"]+)"`)
)

// FormatSignatureParams renders the parameter string shared by the
// Signature-Input header and the @signature-params base line.
func FormatSignatureParams(components []string, created int64, nonce, keyID string) string {
	quoted := make([]string, len(components))
	for i, c := range components {
		quoted[i] = `"` + c + `"`
	}

	params := fmt.Sprintf("(%s)", strings.Join(quoted, " "))
	if created > 0 {
		params += fmt.Sprintf(";created=%d", created)
	}
	if nonce != "" {
		params += fmt.Sprintf(";nonce=%q", nonce)
	}
	params += fmt.Sprintf(";keyid=%q", keyID)
	return params
}

// ParseSignatureInput parses a Signature-Input header value of the form
// sig1=("@method" ...);created=...;nonce="...";keyid="eip155:...".
func ParseSignatureInput(header string) (*SignatureInput, error) {
	params, ok := strings.CutPrefix(header, "sig1=")
	if !ok {
		return nil, fmt.Errorf("signature input must use the sig1 label")
	}

	listMatch := componentListRx.FindStringSubmatch(params)
	if listMatch == nil {
		return nil, fmt.Errorf("missing covered component list")
	}
	var components []string
	for _, c := range strings.Fields(listMatch[1]) {
		components = append(components, strings.Trim(c, `"`))
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("empty covered component list")
	}

	keyIDMatch := keyIDRx.FindStringSubmatch(params)
	if keyIDMatch == nil {
		return nil, fmt.Errorf("keyid not found in signature input")
	}

	input := &SignatureInput{
		Components: components,
		KeyID:      keyIDMatch[1],
		Params:     params,
	}

	if m := createdRx.FindStringSubmatch(params); m != nil {
		created, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid created timestamp: %w", err)
		}
		input.Created = created
	}
	if m := nonceRx.FindStringSubmatch(params); m != nil {
		input.Nonce = m[1]
	}

	return input, nil
}

// BuildKeyID renders an eip155:{chainId}:{address} key identifier.
func BuildKeyID(chainID uint64, address string) string {
	return fmt.Sprintf("%s:%d:%s", KeyIDScheme, chainID, address)
}

// ParseKeyID splits a key identifier into chain id and address.
func ParseKeyID(keyID string) (uint64, common.Address, error) {
	parts := strings.Split(keyID, ":")
	if len(parts) != 3 || parts[0] != KeyIDScheme {
		return 0, common.Address{}, fmt.Errorf("invalid keyid format: %s", keyID)
	}

	chainID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, common.Address{}, fmt.Errorf("invalid chain id in keyid: %w", err)
	}
	if !strings.HasPrefix(parts[2], "0x") || !common.IsHexAddress(parts[2]) {
		return 0, common.Address{}, fmt.Errorf("invalid address in keyid: %s", parts[2])
	}
	return chainID, common.HexToAddress(parts[2]), nil
}

// BuildSignatureBase constructs the canonical byte string that is
// signed and verified. Every covered component becomes one line, and
// the parameter string is bound as the final @signature-params line so
// the timestamp, nonce and keyid cannot be swapped after signing.
func BuildSignatureBase(req *http.Request, components []string, params string) (string, error) {
	var lines []string

	for _, component := range components {
		var value string

		switch component {
		case ComponentMethod:
			value = req.Method
		case ComponentPath:
			value = req.URL.Path
			if value == "" {
				value = "/"
			}
		case ComponentAuthority:
			// Outgoing requests usually leave Host empty and let the
			// transport fill it from the URL; mirror that here so client
			// and server derive the same base.
			value = req.Host
			if value == "" {
				value = req.URL.Host
			}
		default:
			// Header component, e.g. content-digest or x-siwa-receipt.
			value = req.Header.Get(component)
			if value == "" {
				return "", fmt.Errorf("covered header %q is absent", component)
			}
		}

		lines = append(lines, fmt.Sprintf("%q: %s", strings.ToLower(component), value))
	}

	lines = append(lines, fmt.Sprintf("%q: %s", "@signature-params", params))
	return strings.Join(lines, "\n"), nil
}
