package lambdafn

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
)

type echoScheduler struct{ got []byte }

func (e *echoScheduler) Schedule(_ context.Context, body []byte) (int, any) {
	e.got = body
	return http.StatusOK, map[string]string{"message": "This device is opt out"}
}

func TestHandleWrapsSchedulerResponse(t *testing.T) {
	tests := []struct {
		name string
		req  lambdaevents.APIGatewayProxyRequest
	}{
		{"plain body", lambdaevents.APIGatewayProxyRequest{Body: `{"devId":"d"}`}},
		{"base64 body", lambdaevents.APIGatewayProxyRequest{Body: base64.StdEncoding.EncodeToString([]byte(`{"devId":"d"}`)), IsBase64Encoded: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &echoScheduler{}
			resp, err := New(s, zerolog.Nop()).Handle(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			if string(s.got) != `{"devId":"d"}` {
				t.Fatalf("scheduler got %q", s.got)
			}
			if resp.StatusCode != http.StatusOK || resp.Body != `{"message":"This device is opt out"}` {
				t.Fatalf("response = %+v", resp)
			}
			if resp.Headers["Content-Type"] != "application/json" {
				t.Fatalf("headers = %v", resp.Headers)
			}
		})
	}
}

func TestHandleRejectsBadBase64(t *testing.T) {
	s := &echoScheduler{}
	resp, err := New(s, zerolog.Nop()).Handle(context.Background(), lambdaevents.APIGatewayProxyRequest{Body: "%%%", IsBase64Encoded: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest || s.got != nil {
		t.Fatalf("response = %+v", resp)
	}
}
