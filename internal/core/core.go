package core

import (
	"context"
	"fmt"

	"XCam/internal/auth"
	"XCam/internal/conf"
	"XCam/internal/frame"
	"XCam/internal/logger"
	"XCam/internal/servers/rtsp"
)

// Core wires configuration, logging, the frame sources and the RTSP
// server together and owns their lifecycle.
type Core struct {
	product   string
	ctx       context.Context
	ctxCancel func()

	cfg         *conf.Config
	logQueue    *logger.AsyncLogQueue
	videoSource frame.Source
	audioSource frame.Source
	rtspServer  *rtsp.Server

	// out
	done chan struct{}
}

func NewCore(params map[string]interface{}) (*Core, error) {
	ctx, ctxCancel := context.WithCancel(context.Background())
	c := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		done:      make(chan struct{}, 1),
	}
	for k, v := range params {
		switch k {
		case "product":
			if val, ok := v.(string); ok {
				c.product = val
			}
		}
	}

	err := c.createResources()
	if err != nil {
		c.closeResources()
		ctxCancel()
		return nil, err
	}

	return c, nil
}

func (c *Core) createResources() error {
	var err error

	c.cfg, err = conf.Load(conf.CONFIG_FILE)
	if err != nil {
		return err
	}

	c.logQueue, err = logger.NewAsyncLogQueue(c.product,
		logger.WithLogMaxSize(c.cfg.Log.LogMaxSize),
		logger.WithLogMaxBackup(c.cfg.Log.LogMaxBackup),
		logger.WithLogQueueSize(c.cfg.Log.LogQueueSize),
		logger.WithDebug(c.cfg.Log.LogDebug))
	if err != nil {
		return err
	}

	if !c.cfg.Rtsp.Rtsp {
		return fmt.Errorf("rtsp disabled in configuration, nothing to serve")
	}

	c.videoSource = frame.NewSyntheticVideoSource(c.cfg.Video.FPS, c.cfg.Video.GopSize)
	if c.cfg.Audio.Audio {
		c.audioSource = frame.NewSyntheticAudioSource(c.cfg.Audio.SampleRate)
	}

	var validator *auth.Validator
	if c.cfg.Rtsp.AuthEnabled {
		validator = auth.NewValidator("XCam")
		validator.AddUser(c.cfg.Rtsp.AuthUser, c.cfg.Rtsp.AuthPassword)
	}

	c.rtspServer = &rtsp.Server{
		Port:            c.cfg.Rtsp.RtspPort,
		StreamPath:      c.cfg.Rtsp.StreamPath,
		ReadTimeout:     c.cfg.General.ReadTimeout,
		WriteTimeout:    c.cfg.General.WriteTimeout,
		VideoFPS:        c.cfg.Video.FPS,
		AudioEnabled:    c.cfg.Audio.Audio,
		AudioCodec:      c.cfg.Audio.Codec,
		AudioSampleRate: c.cfg.Audio.SampleRate,
		RTPPortLow:      c.cfg.Rtsp.RtpPortLow,
		RTPPortHigh:     c.cfg.Rtsp.RtpPortHigh,
		AuthValidator:   validator,
		VideoSource:     c.videoSource,
		AudioSource:     c.audioSource,
		Parent:          c,
	}
	err = c.rtspServer.Initialize()
	if err != nil {
		return err
	}

	c.Log(logger.Info, "stream available at %s", c.rtspServer.StreamURL())

	return nil
}

func (c *Core) closeResources() {
	if c.rtspServer != nil {
		c.rtspServer.Close()
		c.rtspServer = nil
	} else {
		// the server closes the sources it owns; without a server they
		// are still ours
		if c.videoSource != nil {
			c.videoSource.Close()
		}
		if c.audioSource != nil {
			c.audioSource.Close()
		}
	}
	if c.logQueue != nil {
		c.logQueue.Stop()
		c.logQueue = nil
	}
}

// Log implements logger.Writer.
func (c *Core) Log(level logger.Level, format string, args ...interface{}) {
	if c.logQueue != nil {
		c.logQueue.Log(level, format, args...)
	}
}

func (c *Core) Start() {
	go c.run()
}

// Close closes Core and waits for all goroutines to return.
func (c *Core) Close() {
	c.ctxCancel()
	<-c.done
}

// Wait waits for the Core to exit.
func (c *Core) Wait() {
	<-c.done
}

func (c *Core) run() {
	defer close(c.done)

	<-c.ctx.Done()
	c.closeResources()
}
