package otp

import (
	"net/url"
	"strconv"
)

// URIParams describes an authenticator enrolment.
type URIParams struct {
	Issuer    string
	Account   string
	Secret    string
	Digits    int
	Period    uint32
	Algorithm Algorithm
}

// ProvisioningURI renders params in the otpauth:// Key URI format understood
// by authenticator apps.
func ProvisioningURI(p URIParams) string {
	label := p.Account
	if p.Issuer != "" {
		label = p.Issuer + ":" + p.Account
	}

	digits := p.Digits
	if digits == 0 {
		digits = DefaultDigits
	}
	period := p.Period
	if period == 0 {
		period = DefaultPeriod
	}
	alg := p.Algorithm
	if alg == "" {
		alg = AlgorithmSHA1
	}

	v := url.Values{}
	v.Set("secret", p.Secret)
	if p.Issuer != "" {
		v.Set("issuer", p.Issuer)
	}
	v.Set("algorithm", string(alg))
	v.Set("digits", strconv.Itoa(digits))
	v.Set("period", strconv.FormatUint(uint64(period), 10))

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + label,
		RawQuery: v.Encode(),
	}
	return u.String()
}
