package restyutil

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
)

func formatHeaders(headers http.Header) string {
	var out strings.Builder
	for k, vals := range headers {
		for _, v := range vals {
			fmt.Fprintf(&out, "%s: %s\n", k, v)
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func formatRequestBody(req *http.Request) string {
	if req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	readBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	if strings.Contains(req.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return redactFormSecrets(string(readBody))
	}
	return string(readBody)
}

// form submissions may carry credentials; password-like fields are
// masked so they never reach dump files.
func redactFormSecrets(body string) string {
	values, err := url.ParseQuery(body)
	if err != nil {
		return body
	}
	for key := range values {
		if strings.Contains(strings.ToLower(key), "password") {
			values.Set(key, "REDACTED")
		}
	}
	return values.Encode()
}

// FormatRequest renders the request line, headers and body of the
// exchange's request in a readable block.
func FormatRequest(res *resty.Response) string {
	return fmt.Sprintf(
		"---- REQUEST ----\n\n%s %s\n\n%s\n\n%s",
		res.Request.Method,
		res.Request.URL,
		formatHeaders(res.Request.RawRequest.Header),
		formatRequestBody(res.Request.RawRequest),
	)
}

// FormatResponse renders the status, final url, headers and body of
// the exchange's response in a readable block.
func FormatResponse(res *resty.Response) string {
	responseUrl := res.Request.URL
	redirected, err := res.RawResponse.Location()
	if err == nil {
		responseUrl = redirected.String()
	}

	return fmt.Sprintf(
		"---- RESPONSE ----\n\n%d %s\n\n%s\n\n%s",
		res.StatusCode(),
		responseUrl,
		formatHeaders(res.Header()),
		res.String(),
	)
}

func formatHttpMessage(res *resty.Response) string {
	return FormatRequest(res) + "\n\n" + FormatResponse(res)
}
