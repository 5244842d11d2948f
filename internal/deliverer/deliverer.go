// Package deliverer implements signed POST of activities to remote
// inboxes: reachability tracking, retry scheduling, and bounded
// concurrency, per spec.md §4.7.
package deliverer

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/klppl/apfed/internal/httpsig"
	"github.com/klppl/apfed/internal/transport"
)

// ResultKind classifies a delivery attempt's outcome, per spec.md §4.7:
// the retry/no-retry decision is encoded in the variant, never recovered
// from a status code by the caller.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultFatal
	ResultTransient
)

// Result is the outcome of one send_object attempt.
type Result struct {
	Kind       ResultKind
	StatusCode int
	BodySample string // first N bytes of a non-2xx response body
}

// Sender is the identity delivering an activity: its key ID and private
// key, used to sign the outbound POST.
type Sender struct {
	KeyID   string
	RSA     *rsa.PrivateKey
	Ed25519 ed25519.PrivateKey
}

// bodySampleLimit bounds how much of a failing response body gets logged,
// per spec.md §4.7 ("first N bytes of body (N configurable)").
const bodySampleLimit = 512

// Deliverer sends activities to remote inboxes per spec.md §4.7.
type Deliverer struct {
	agent *transport.Agent
}

// New builds a Deliverer around a transport.Agent.
func New(agent *transport.Agent) *Deliverer {
	return &Deliverer{agent: agent}
}

// SendObject implements send_object(activity_json, recipient_inbox,
// sender) from spec.md §4.7: a single delivery attempt, no retry loop
// (retries are the caller's queue-worker responsibility, see
// runDeliveryWorker in cmd/apfedd). A transport error is Transient, except
// an SSRF block, which is Fatal and returned as the error.
func (d *Deliverer) SendObject(ctx context.Context, activityJSON []byte, recipientInbox string, sender Sender) (Result, error) {
	digest := httpsig.ComputeContentDigest(activityJSON)

	headers := map[string]string{
		"Content-Type":    "application/activity+json",
		"Content-Digest":  digest,
	}

	sign := func(req *http.Request) error {
		req.Header.Set("Content-Digest", digest)
		switch {
		case sender.RSA != nil:
			return httpsig.SignCavage(req, activityJSON, sender.KeyID, sender.RSA)
		case sender.Ed25519 != nil:
			return httpsig.SignRFC9421(req, activityJSON, sender.KeyID, sender.Ed25519)
		default:
			return fmt.Errorf("deliverer: sender has no signing key")
		}
	}

	resp, body, err := d.agent.Post(ctx, recipientInbox, activityJSON, headers, sign)
	if err != nil {
		var ssrfErr *transport.SsrfBlockedError
		if errors.As(err, &ssrfErr) {
			return Result{Kind: ResultFatal}, err
		}
		return Result{Kind: ResultTransient}, nil
	}

	return classify(resp.StatusCode, body), nil
}

// classify maps an HTTP status code to the result semantics from
// spec.md §4.7: 2xx success, 410 fatal (no retry), other 4xx fatal,
// 5xx transient.
func classify(status int, body []byte) Result {
	sample := body
	if len(sample) > bodySampleLimit {
		sample = sample[:bodySampleLimit]
	}

	switch {
	case status >= 200 && status < 300:
		return Result{Kind: ResultSuccess, StatusCode: status}
	case status == http.StatusGone:
		return Result{Kind: ResultFatal, StatusCode: status, BodySample: string(sample)}
	case status >= 400 && status < 500:
		return Result{Kind: ResultFatal, StatusCode: status, BodySample: string(sample)}
	default:
		return Result{Kind: ResultTransient, StatusCode: status, BodySample: string(sample)}
	}
}

// NextRetryDelay returns how long to wait before the attempt'th retry
// (1-indexed), or ok=false once the cumulative retry schedule exceeds
// spec.md §4.7's 72h max elapsed time, at which point the caller marks the
// actor unreachable.
func NextRetryDelay(attempt int) (delay time.Duration, ok bool) {
	b := retrySchedule()
	var elapsed time.Duration
	for i := 0; i < attempt; i++ {
		d := b.NextBackOff()
		if d == backoff.Stop {
			return 0, false
		}
		elapsed += d
		if elapsed > maxElapsed {
			return 0, false
		}
		delay = d
	}
	return delay, true
}
