package xoswarm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdapter_Call(t *testing.T) {
	tests := []struct {
		name    string
		adapter Adapter
		want    string
	}{
		{
			name:    "success passes through",
			adapter: NewAdapter("P1", &stubClient{reply: "Res 1"}),
			want:    "Res 1",
		},
		{
			name:    "error is tagged with display name",
			adapter: NewAdapter("P1", &stubClient{err: errStub}),
			want:    "Error (P1): stub failure",
		},
		{
			name:    "panic is recovered",
			adapter: NewAdapter("P1", &stubClient{panicMsg: "boom"}),
			want:    "Error (P1): panic: boom",
		},
		{
			name:    "nil client",
			adapter: NewAdapter("P1", nil),
			want:    "Error (P1): client not initialized",
		},
		{
			name:    "failed adapter",
			adapter: FailedAdapter("P1", "bad base URL"),
			want:    "Error (P1): bad base URL",
		},
		{
			name:    "free web substitute success",
			adapter: substituteAdapter("ChatGPT", &stubClient{reply: "free"}, "gpt-4"),
			want:    "free\n\n*(Source: Free Web - ChatGPT via gpt-4)*",
		},
		{
			name:    "free web substitute failure",
			adapter: substituteAdapter("ChatGPT", &stubClient{err: errStub}, "gpt-4"),
			want:    "Error (ChatGPT - Free Web): stub failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.adapter.Call(context.Background(), "q"))
		})
	}
}

func TestAdapter_Close(t *testing.T) {
	c := &stubClient{}
	a := NewAdapter("P1", c)
	assert.NoError(t, a.Close())
	assert.True(t, c.closed.Load())

	assert.NoError(t, FailedAdapter("P2", "x").Close())
}

func TestIsError(t *testing.T) {
	assert.True(t, IsError("Error (P1): timeout"))
	assert.True(t, IsError("Error: All synthesis methods failed."))
	assert.False(t, IsError("error (p1): lower case is an answer"))
	assert.False(t, IsError("An Error occurred in the story"))
	assert.False(t, IsError(""))
}
