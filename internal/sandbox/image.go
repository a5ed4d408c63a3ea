package sandbox

import (
	"context"
	"strings"
	"sync/atomic"

	appErr "ctfoj/pkg/errors"
	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// ImageConfig selects the image of a challenge. With BuildContext set the
// image is built from that directory, otherwise Tag is pulled when missing.
type ImageConfig struct {
	Tag          string
	BuildContext string
}

// Image is the container image of one challenge instance.
type Image struct {
	cid          string
	tag          string
	buildContext string
	exec         *Executor
	ready        atomic.Bool
}

// NewImage binds an image to cid. An empty tag is derived from cid.
func (e *Executor) NewImage(cid string, cfg ImageConfig) (*Image, error) {
	if cfg.Tag == "" && cfg.BuildContext == "" {
		return nil, appErr.Newf(appErr.InvalidParams, "no build context or image tag for %s", cid)
	}
	tag := cfg.Tag
	if tag == "" {
		tag = Tagify(cid)
	}
	return &Image{cid: cid, tag: tag, buildContext: cfg.BuildContext, exec: e}, nil
}

func (img *Image) Tag() string { return img.tag }

// Ready reports whether Setup completed.
func (img *Image) Ready() bool { return img.ready.Load() }

// Setup builds or pulls the image and verifies it exists.
func (img *Image) Setup(ctx context.Context) error {
	ctx = logger.WithChallenge(ctx, img.cid)
	if img.buildContext != "" {
		logger.Info(ctx, "building sandbox image", zap.String("tag", img.tag))
		if _, err := img.exec.exec(ctx, "build", "-t", img.tag, img.buildContext); err != nil {
			return err
		}
		logger.Info(ctx, "sandbox image built", zap.String("tag", img.tag))
	} else {
		res, err := img.exec.exec(ctx, "images", "-q", img.tag)
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(res.Stdout)) == "" {
			logger.Info(ctx, "pulling sandbox image", zap.String("tag", img.tag))
			if _, err := img.exec.exec(ctx, "pull", img.tag); err != nil {
				return err
			}
			logger.Info(ctx, "sandbox image pulled", zap.String("tag", img.tag))
		}
	}
	if _, err := img.exec.exec(ctx, "inspect", img.tag); err != nil {
		return err
	}
	img.ready.Store(true)
	return nil
}
