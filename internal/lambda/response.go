package lambda

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// response is built locally and encoded as either event version.
type response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Binary     bool
}

func newResponse(status int, contentType string, body []byte) *response {
	return &response{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":                contentType,
			"Access-Control-Allow-Origin": "*",
		},
		Body: body,
	}
}

func textResponse(status int, body string) *response {
	return newResponse(status, "text/plain; charset=utf-8", []byte(body))
}

func jsonResponse(status int, obj interface{}) *response {
	b, err := json.Marshal(obj)
	if err != nil {
		return textResponse(http.StatusInternalServerError, "Internal server error")
	}
	return newResponse(status, "application/json", b)
}

func (r *response) body() string {
	if r.Binary {
		return base64.StdEncoding.EncodeToString(r.Body)
	}
	return string(r.Body)
}

func (r *response) encode(v2 bool) interface{} {
	if v2 {
		return events.APIGatewayV2HTTPResponse{
			StatusCode:      r.StatusCode,
			Headers:         r.Headers,
			Body:            r.body(),
			IsBase64Encoded: r.Binary,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode:      r.StatusCode,
		Headers:         r.Headers,
		Body:            r.body(),
		IsBase64Encoded: r.Binary,
	}
}
