package ari

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/ivrflow/runtime"
)

// client wraps the ARI REST resources used by the engine.
type client struct {
	rest *resty.Client
}

func newClient(cfg Config) *client {
	return &client{
		rest: resty.New().
			SetBaseURL(strings.TrimSuffix(cfg.URL, "/")+"/ari").
			SetBasicAuth(cfg.Username, cfg.Password).
			SetTimeout(cfg.RequestTimeout),
	}
}

func (c *client) answer(ctx context.Context, channelID string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", channelID).
		Post("/channels/{id}/answer")
	return channelResult("answer", resp, err)
}

func (c *client) play(ctx context.Context, channelID, playbackID, media string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"id": channelID, "playback": playbackID}).
		SetQueryParam("media", media).
		Post("/channels/{id}/play/{playback}")
	return channelResult("play", resp, err)
}

func (c *client) stopPlayback(ctx context.Context, playbackID string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("playback", playbackID).
		Delete("/playbacks/{playback}")
	if err != nil {
		return err
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("stop playback %s: %s", playbackID, resp.Status())
	}
	return nil
}

func (c *client) hangup(ctx context.Context, channelID string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", channelID).
		Delete("/channels/{id}")
	return channelResult("hangup", resp, err)
}

type variableResponse struct {
	Value string `json:"value"`
}

// variable reads a channel variable. ARI answers 404 both for an unknown
// channel and an unset variable, so a 404 is reported as unset.
func (c *client) variable(ctx context.Context, channelID, name string) (string, error) {
	var res variableResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", channelID).
		SetQueryParam("variable", name).
		SetResult(&res).
		Get("/channels/{id}/variable")
	if err != nil {
		return "", &runtime.ChannelError{Op: "variable", Err: err}
	}
	if resp.IsError() {
		return "", fmt.Errorf("variable %s: %s", name, resp.Status())
	}
	return res.Value, nil
}

func (c *client) continueInDialplan(ctx context.Context, channelID string, target runtime.Redirect) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", channelID).
		SetQueryParams(map[string]string{
			"context":   target.Context,
			"extension": target.Extension,
			"priority":  strconv.Itoa(target.Priority),
		}).
		Post("/channels/{id}/continue")
	return channelResult("redirect", resp, err)
}

// channelResult maps a channel operation response. 404 and 409 mean the
// channel is gone or no longer in the application.
func channelResult(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &runtime.ChannelError{Op: op, Err: err}
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound, resp.StatusCode() == http.StatusConflict:
		return &runtime.ChannelError{Op: op, Err: runtime.ErrChannelGone}
	case resp.IsError():
		return &runtime.ChannelError{Op: op, Err: fmt.Errorf("unexpected response %s", resp.Status())}
	}
	return nil
}
