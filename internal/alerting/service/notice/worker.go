package notice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TencentBlueKing/bk-monitor-sub004/internal/alerting/service/actioncontext"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/config"
	"github.com/TencentBlueKing/bk-monitor-sub004/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	writeTimeout  = 10 * time.Second
	renderTimeout = 30 * time.Second

	HeaderRequestID = "request_id"
)

// MessageReader kafka.Reader 中 worker 用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter kafka.Writer 中 worker 用到的部分
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Worker 从渲染主题消费请求，把结果发布到输出主题
type Worker struct {
	reader   MessageReader
	writer   MessageWriter
	renderer *Renderer

	// sleepFn allows overriding for tests
	sleepFn func(time.Duration)
}

func NewWorker(reader MessageReader, writer MessageWriter, renderer *Renderer) *Worker {
	return &Worker{reader: reader, writer: writer, renderer: renderer, sleepFn: time.Sleep}
}

// NewKafkaWorker 按配置创建消费组读取端和同步写入端
func NewKafkaWorker(cfg config.KafkaConfig, renderer *Renderer) (*Worker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers cannot be empty")
	}
	if cfg.RenderTopic == "" || cfg.OutputTopic == "" {
		return nil, errors.New("kafka render and output topics are required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.RenderTopic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	})
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.OutputTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("render_topic", cfg.RenderTopic).
		Str("output_topic", cfg.OutputTopic).
		Str("group_id", cfg.GroupID).
		Msg("render worker configured")
	return NewWorker(reader, writer, renderer), nil
}

// Start 阻塞消费直到 ctx 取消。失败的消息记录后照常提交，重试由调度方负责
func (w *Worker) Start(ctx context.Context) {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("fetch render request failed")
			w.sleepFn(time.Second)
			continue
		}

		result := "ok"
		if err := w.Handle(ctx, msg); err != nil {
			result = resultOf(err)
			log.Error().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Str("result", result).
				Msg("render request failed")
		}
		metrics.RenderWorkerMessages.WithLabelValues(result).Inc()

		if err := w.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("commit render request failed")
		}
	}
}

type workerError struct {
	result string
	err    error
}

func (e *workerError) Error() string { return e.result + ": " + e.err.Error() }

func (e *workerError) Unwrap() error { return e.err }

func resultOf(err error) string {
	var we *workerError
	if errors.As(err, &we) {
		return we.result
	}
	return "error"
}

// Handle 处理一条渲染请求，输出以 notice_info 为 key
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) error {
	var opts actioncontext.Options
	if err := json.Unmarshal(msg.Value, &opts); err != nil {
		return &workerError{result: "decode_error", err: err}
	}

	requestID := headerValue(msg, HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	renderCtx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()
	out, err := w.renderer.Render(renderCtx, opts)
	if err != nil {
		return &workerError{result: "render_error", err: err}
	}

	body, err := json.Marshal(out)
	if err != nil {
		return &workerError{result: "encode_error", err: err}
	}
	err = w.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(out.ConvergenceKeys.NoticeInfo),
		Value:   body,
		Headers: []kafka.Header{{Key: HeaderRequestID, Value: []byte(requestID)}},
	})
	if err != nil {
		return &workerError{result: "publish_error", err: fmt.Errorf("publish %s: %w", requestID, err)}
	}
	log.Info().
		Str("request_id", requestID).
		Int64("action_id", opts.ActionID).
		Int64("converge_id", opts.ConvergeID).
		Str("notice_way", out.NoticeWay).
		Msg("render request published")
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Close 关闭读写两端
func (w *Worker) Close() error {
	return errors.Join(w.reader.Close(), w.writer.Close())
}
