package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"syscall"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
)

// classifyTransportError turns a client error into the error-code style
// diagnostic stored with the outcome.
func classifyTransportError(err error, target *url.URL) *check.TransportError {
	te := &check.TransportError{Err: unwrapURLError(err)}
	if target != nil {
		te.Host = target.Hostname()
	}

	var (
		dnsErr   *net.DNSError
		opErr    *net.OpError
		netErr   net.Error
		unknCA   x509.UnknownAuthorityError
		hostErr  x509.HostnameError
		certErr  x509.CertificateInvalidError
		recErr   tls.RecordHeaderError
		verifErr *tls.CertificateVerificationError
	)

	if errors.As(err, &opErr) {
		te.Syscall = opErr.Op
		if opErr.Addr != nil {
			te.Address = opErr.Addr.String()
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		te.Code, te.Timeout = "ETIMEDOUT", true
	case errors.Is(err, context.Canceled):
		te.Code = "ECANCELED"
	case errors.As(err, &dnsErr):
		te.Code = "ENOTFOUND"
		te.Syscall = "getaddrinfo"
		te.Host = dnsErr.Name
		te.Timeout = dnsErr.IsTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		te.Code = "ECONNREFUSED"
	case errors.Is(err, syscall.ECONNRESET):
		te.Code = "ECONNRESET"
	case errors.Is(err, syscall.EHOSTUNREACH):
		te.Code = "EHOSTUNREACH"
	case errors.Is(err, syscall.ENETUNREACH):
		te.Code = "ENETUNREACH"
	case errors.As(err, &verifErr), errors.As(err, &unknCA), errors.As(err, &hostErr),
		errors.As(err, &certErr), errors.As(err, &recErr):
		te.Code = "ECERT"
	case errors.As(err, &netErr) && netErr.Timeout():
		te.Code, te.Timeout = "ETIMEDOUT", true
	default:
		te.Code = "EREQUEST"
	}
	return te
}

func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err
	}
	return err
}
