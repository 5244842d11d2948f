package httpsig

import (
	"crypto/rsa"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-fed/httpsig"
)

// signatureParam is one "key=value"/"key=\"value\"" pair parsed out of a
// draft-cavage Signature/Authorization header. Unquoted values are
// tolerated for interop, per spec.md §4.4.
type signatureParam struct {
	key, value string
}

func parseCavageParams(header string) map[string]string {
	out := make(map[string]string)
	for _, part := range splitTopLevel(header, ',') {
		part = strings.TrimSpace(part)
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(part[:eq])
		val := strings.TrimSpace(part[eq+1:])
		val = strings.Trim(val, `"`)
		out[key] = val
	}
	return out
}

// splitTopLevel splits on sep but ignores separators inside double quotes,
// since a draft-cavage "headers" list value can itself contain spaces and
// the whole header is comma separated at the top level only.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' {
			inQuotes = !inQuotes
		}
		if c == sep && !inQuotes {
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	out = append(out, cur.String())
	return out
}

// SignCavage signs req in place using the draft-cavage wire format, covering
// "(request-target) host date digest" as required by spec.md §4.4/§6. body
// is used to compute the Digest header when non-empty.
func SignCavage(req *http.Request, body []byte, keyID string, sk *rsa.PrivateKey) error {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	req.Header.Set("Host", req.URL.Host)

	headers := []string{httpsig.RequestTarget, "host", "date"}
	if len(body) > 0 {
		headers = append(headers, "digest")
	}

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		headers,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("httpsig: create signer: %w", err)
	}
	if err := signer.SignRequest(sk, keyID, req, body); err != nil {
		return fmt.Errorf("httpsig: sign request: %w", err)
	}
	return nil
}

func verifyCavage(req *http.Request, body []byte, resolve KeyResolver) (*VerifiedBy, error) {
	sigHeader := req.Header.Get("Signature")
	if sigHeader == "" {
		sigHeader = req.Header.Get("Authorization")
		const prefix = "Signature "
		if strings.HasPrefix(sigHeader, prefix) {
			sigHeader = sigHeader[len(prefix):]
		}
	}
	if sigHeader == "" {
		return nil, newErr(KindMalformed, "empty Signature header")
	}
	params := parseCavageParams(sigHeader)

	keyID := params["keyId"]
	if keyID == "" {
		return nil, newErr(KindKeyIdInvalid, "missing keyId parameter")
	}

	coveredHeaders := strings.Fields(params["headers"])
	if len(coveredHeaders) == 0 {
		// go-fed/httpsig defaults to covering only "date" when headers is
		// absent; spec.md requires at least method+target-uri coverage.
		return nil, newErr(KindCoverageInsufficient, "no headers parameter; request-target not covered")
	}
	if !containsFold(coveredHeaders, httpsig.RequestTarget) {
		return nil, newErr(KindCoverageInsufficient, "(request-target) not covered by signature")
	}

	if err := checkBodyDigestCoverage(req, body, coveredHeaders); err != nil {
		return nil, err
	}

	if err := checkCavageSkew(params); err != nil {
		return nil, err
	}

	if err := verifyDigestHeader(req.Header, body); err != nil {
		return nil, err
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return nil, newErr(KindMalformed, "create verifier: "+err.Error())
	}

	pk, err := resolve(verifier.KeyId())
	if err != nil {
		return nil, newErr(KindKeyIdInvalid, "resolve key: "+err.Error())
	}

	var algo httpsig.Algorithm
	switch {
	case pk.RSA != nil:
		algo = httpsig.RSA_SHA256
		if err := verifier.Verify(pk.RSA, algo); err != nil {
			return nil, newErr(KindCrypto, err.Error())
		}
	case pk.Ed25519 != nil:
		algo = httpsig.ED25519
		if err := verifier.Verify(pk.Ed25519, algo); err != nil {
			return nil, newErr(KindCrypto, err.Error())
		}
	default:
		return nil, newErr(KindKeyIdInvalid, "resolver returned no usable key")
	}

	return &VerifiedBy{KeyID: verifier.KeyId(), Format: FormatDraftCavage}, nil
}

func checkBodyDigestCoverage(req *http.Request, body []byte, covered []string) error {
	if len(body) == 0 {
		return nil
	}
	if containsFold(covered, "digest") || containsFold(covered, "content-digest") {
		return nil
	}
	return newErr(KindCoverageInsufficient, "body present but digest/content-digest not covered")
}

func checkCavageSkew(params map[string]string) error {
	now := time.Now()
	if createdStr := params["created"]; createdStr != "" {
		sec, err := strconv.ParseInt(createdStr, 10, 64)
		if err == nil {
			created := time.Unix(sec, 0)
			if d := now.Sub(created); d > MaxSkew || d < -MaxSkew {
				return newErr(KindExpired, "created skew exceeds ±5m")
			}
		}
	}
	if expiresStr := params["expires"]; expiresStr != "" {
		sec, err := strconv.ParseInt(expiresStr, 10, 64)
		if err == nil {
			expires := time.Unix(sec, 0)
			if now.After(expires) {
				return newErr(KindExpired, "signature expired")
			}
		}
	}
	return nil
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
