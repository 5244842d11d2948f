package httpsig

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	apcrypto "github.com/klppl/apfed/internal/crypto"
)

// rfc9421SignatureInput holds one parsed "Signature-Input" entry, e.g.
// sig1=("@method" "@target-uri" "content-digest");keyid="...";created=...
type rfc9421SignatureInput struct {
	label      string
	components []string
	params     map[string]string
}

func parseSignatureInput(header string) (*rfc9421SignatureInput, error) {
	eq := strings.IndexByte(header, '=')
	if eq < 0 {
		return nil, fmt.Errorf("malformed signature-input")
	}
	label := strings.TrimSpace(header[:eq])
	rest := strings.TrimSpace(header[eq+1:])

	if !strings.HasPrefix(rest, "(") {
		return nil, fmt.Errorf("malformed component list")
	}
	end := strings.IndexByte(rest, ')')
	if end < 0 {
		return nil, fmt.Errorf("unterminated component list")
	}
	listPart := rest[1:end]
	var components []string
	for _, tok := range strings.Fields(listPart) {
		components = append(components, strings.Trim(tok, `"`))
	}

	paramsPart := rest[end+1:]
	params := make(map[string]string)
	for _, p := range splitTopLevel(strings.TrimPrefix(paramsPart, ";"), ';') {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		params[strings.TrimSpace(kv[0])] = strings.Trim(strings.TrimSpace(kv[1]), `"`)
	}

	return &rfc9421SignatureInput{label: label, components: components, params: params}, nil
}

// buildSignatureBase reconstructs the RFC-9421 signature base string for the
// given covered components, in order, each on its own line as
// `"component": value`, followed by the @signature-params line.
func buildSignatureBase(req *http.Request, sigInput *rfc9421SignatureInput, rawInputLine string) (string, error) {
	var lines []string
	for _, comp := range sigInput.components {
		val, err := resolveComponent(req, comp)
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("%q: %s", comp, val))
	}
	lines = append(lines, fmt.Sprintf(`"@signature-params": %s`, rawInputLine))
	return strings.Join(lines, "\n"), nil
}

func resolveComponent(req *http.Request, comp string) (string, error) {
	switch comp {
	case "@method":
		return strings.ToUpper(req.Method), nil
	case "@target-uri":
		return req.URL.String(), nil
	case "@authority":
		if req.Host != "" {
			return strings.ToLower(req.Host), nil
		}
		return strings.ToLower(req.URL.Host), nil
	case "@path":
		return req.URL.Path, nil
	case "@query":
		if req.URL.RawQuery == "" {
			return "?", nil
		}
		return "?" + req.URL.RawQuery, nil
	default:
		v := req.Header.Get(comp)
		if v == "" {
			return "", fmt.Errorf("component %q not present on request", comp)
		}
		return v, nil
	}
}

// SignRFC9421 signs req using RFC-9421, covering @method, @target-uri, and
// content-digest (when body is non-empty), per spec.md §4.4/§6.
func SignRFC9421(req *http.Request, body []byte, keyID string, sk ed25519.PrivateKey) error {
	components := []string{"@method", "@target-uri"}
	if len(body) > 0 {
		req.Header.Set("Content-Digest", ComputeContentDigest(body))
		components = append(components, "content-digest")
	}

	created := time.Now().Unix()
	var sb strings.Builder
	sb.WriteString("(")
	for i, c := range components {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.Quote(c))
	}
	sb.WriteString(")")
	fmt.Fprintf(&sb, `;created=%d;keyid="%s"`, created, keyID)
	inputLine := "sig1=" + sb.String()

	req.Header.Set("Signature-Input", inputLine)

	sigInput := &rfc9421SignatureInput{components: components, params: map[string]string{
		"created": strconv.FormatInt(created, 10),
		"keyid":   keyID,
	}}
	base, err := buildSignatureBase(req, sigInput, sb.String())
	if err != nil {
		return fmt.Errorf("httpsig: build rfc9421 base: %w", err)
	}

	sig := apcrypto.Ed25519Sign(sk, []byte(base))
	req.Header.Set("Signature", "sig1=:"+base64.StdEncoding.EncodeToString(sig)+":")
	return nil
}

func verifyRFC9421(req *http.Request, body []byte, resolve KeyResolver) (*VerifiedBy, error) {
	inputHeader := req.Header.Get("Signature-Input")
	sigHeader := req.Header.Get("Signature")
	if inputHeader == "" || sigHeader == "" {
		return nil, newErr(KindMalformed, "missing Signature-Input or Signature header")
	}

	eq := strings.IndexByte(inputHeader, '=')
	if eq < 0 {
		return nil, newErr(KindMalformed, "malformed signature-input")
	}
	label := inputHeader[:eq]
	rawInputLine := inputHeader[eq+1:]

	sigInput, err := parseSignatureInput(inputHeader)
	if err != nil {
		return nil, newErr(KindMalformed, err.Error())
	}

	if !containsFold(sigInput.components, "@method") || !containsFold(sigInput.components, "@target-uri") {
		return nil, newErr(KindCoverageInsufficient, "@method and @target-uri must both be covered")
	}
	if len(body) > 0 && !containsFold(sigInput.components, "content-digest") {
		return nil, newErr(KindCoverageInsufficient, "body present but content-digest not covered")
	}

	if created := sigInput.params["created"]; created != "" {
		sec, err := strconv.ParseInt(created, 10, 64)
		if err == nil {
			if d := time.Since(time.Unix(sec, 0)); d > MaxSkew || d < -MaxSkew {
				return nil, newErr(KindExpired, "created skew exceeds ±5m")
			}
		}
	}
	if expires := sigInput.params["expires"]; expires != "" {
		sec, err := strconv.ParseInt(expires, 10, 64)
		if err == nil && time.Now().After(time.Unix(sec, 0)) {
			return nil, newErr(KindExpired, "signature expired")
		}
	}

	if err := verifyDigestHeader(req.Header, body); err != nil {
		return nil, err
	}

	keyID := sigInput.params["keyid"]
	if keyID == "" {
		return nil, newErr(KindKeyIdInvalid, "missing keyid parameter")
	}

	base, err := buildSignatureBase(req, sigInput, rawInputLine)
	if err != nil {
		return nil, newErr(KindMalformed, err.Error())
	}

	sigVal, err := extractSignatureValue(sigHeader, label)
	if err != nil {
		return nil, newErr(KindMalformed, err.Error())
	}

	pk, err := resolve(keyID)
	if err != nil {
		return nil, newErr(KindKeyIdInvalid, "resolve key: "+err.Error())
	}
	if pk.Ed25519 == nil {
		return nil, newErr(KindCrypto, "RFC-9421 verification requires an ed25519 key")
	}
	if !apcrypto.Ed25519Verify(pk.Ed25519, []byte(base), sigVal) {
		return nil, newErr(KindCrypto, "signature does not verify")
	}

	return &VerifiedBy{KeyID: keyID, Format: FormatRFC9421}, nil
}

// extractSignatureValue pulls the raw signature bytes out of a
// `Signature: sig1=:<b64>:` header for the given label.
func extractSignatureValue(header, label string) ([]byte, error) {
	for _, part := range splitTopLevel(header, ',') {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, label+"=") {
			continue
		}
		val := strings.TrimPrefix(part, label+"=")
		val = strings.Trim(val, ":")
		return base64.StdEncoding.DecodeString(val)
	}
	return nil, fmt.Errorf("no signature value for label %q", label)
}
