package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedClient struct {
	name   string
	key    string
	closed bool
}

func (c *namedClient) Name() string { return c.name }
func (c *namedClient) Close() error { c.closed = true; return nil }
func (c *namedClient) Complete(_ context.Context, req Request) (Response, error) {
	return Response{Content: c.name + ":" + req.Model}, nil
}

func TestDispatch_RoutesByProviderAndCaches(t *testing.T) {
	opened := map[string]int{}
	var made []*namedClient
	factory := func(name string) Factory {
		return func(_ context.Context, apiKey string) (ChatClient, error) {
			opened[name]++
			c := &namedClient{name: name, key: apiKey}
			made = append(made, c)
			return c, nil
		}
	}
	d := NewDispatch("secret", "Groq", map[string]Factory{
		"groq":   factory("groq"),
		"GEMINI": factory("gemini"),
	})

	resp, err := d.Complete(context.Background(), Request{Model: "a"})
	require.NoError(t, err)
	assert.Equal(t, "groq:a", resp.Content)

	resp, err = d.Complete(context.Background(), Request{Provider: "gemini", Model: "b"})
	require.NoError(t, err)
	assert.Equal(t, "gemini:b", resp.Content)

	_, err = d.Complete(context.Background(), Request{Provider: "groq", Model: "c"})
	require.NoError(t, err)
	assert.Equal(t, 1, opened["groq"])
	assert.Equal(t, 1, opened["gemini"])

	require.NoError(t, d.Close())
	for _, c := range made {
		assert.True(t, c.closed)
		assert.Equal(t, "secret", c.key)
	}
}

func TestDispatch_UnknownProvider(t *testing.T) {
	d := NewDispatch("k", "groq", nil)
	_, err := d.Complete(context.Background(), Request{Model: "m"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDispatch_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	d := NewDispatch("k", "groq", map[string]Factory{
		"groq": func(context.Context, string) (ChatClient, error) { return nil, boom },
	})
	_, err := d.Complete(context.Background(), Request{Model: "m"})
	require.ErrorIs(t, err, boom)
}
