package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/labgrade-api/pkg/grading"
)

var (
	predictionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "labgrade",
		Subsystem: "ai",
		Name:      "prediction_duration_seconds",
		Help:      "Duration of grade prediction requests",
	}, []string{"model"})

	predictionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labgrade",
		Subsystem: "ai",
		Name:      "prediction_failures_total",
		Help:      "Number of failed grade prediction requests",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI predictor.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIPredictor implements grading.PredictivePolicy against the chat completion API.
type OpenAIPredictor struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIPredictor builds a predictor using the provided configuration.
func NewOpenAIPredictor(cfg OpenAIConfig) (*OpenAIPredictor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 64
	}

	tracer := otel.Tracer("github.com/noah-isme/labgrade-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(config)

	return &OpenAIPredictor{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger.With().Str("component", "openai_predictor").Logger(),
	}, nil
}

// Predict sends the partial record summary to OpenAI and returns its "<LETTER>:<TAG>" answer.
func (p *OpenAIPredictor) Predict(parent context.Context, input grading.PredictionRequest) (grading.PredictionResponse, error) {
	ctx, span := p.tracer.Start(parent, "openai.predict_grade", trace.WithAttributes(
		attribute.String("model", p.cfg.Model),
		attribute.Float64("grading.total_percentage", input.TotalPercentage),
		attribute.Int("grading.recorded_weeks", len(input.WeeklyTrend)),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: predictorSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	predictionDuration.WithLabelValues(p.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return grading.PredictionResponse{}, p.fail(span, fmt.Errorf("openai predict: %w", err))
	}

	if len(resp.Choices) == 0 {
		return grading.PredictionResponse{}, p.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	response, err := parsePredictionResponse(content)
	if err != nil {
		return grading.PredictionResponse{}, p.fail(span, err)
	}

	p.logger.Debug().
		Str("final_grade", response.FinalGrade).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("grade prediction received")
	span.SetAttributes(attribute.String("grading.final_grade", response.FinalGrade))

	return response, nil
}

func (p *OpenAIPredictor) fail(span trace.Span, err error) error {
	predictionFailures.WithLabelValues(p.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func predictorSystemPrompt() string {
	return "You are an academic evaluator predicting a student's final lab-course grade from partial progress. " +
		"Missing weeks are not zeros: project the observed behaviour forward. " +
		"Strong early performance raises the prediction and a student with a strong first week must never receive F. " +
		"Declining later weeks lower the prediction. Consistent attendance raises confidence. " +
		"Rubric: A 70-100, B 55-70, C 45-55, D 40-45, F below 40. " +
		"Tags: High Achiever, Consistent Performer, Improving, Average/Stable, At Risk. " +
		`Respond with a JSON object {"finalGrade": "<LETTER>:<TAG>"} choosing exactly one letter and one tag.`
}

func buildUserPrompt(input grading.PredictionRequest) string {
	builder := strings.Builder{}
	builder.WriteString("# Current percentage\n")
	builder.WriteString(fmt.Sprintf("%.2f%%", input.TotalPercentage))
	builder.WriteString("\n\n## Components received so far\n")
	builder.WriteString(fmt.Sprintf("Lab: %g out of %g (weighted %s of 60)\n", input.ActualScores.TotalLabMarks, input.MaxScores.Lab, input.WeightedScores.Lab))
	builder.WriteString(fmt.Sprintf("Quiz: %g out of %g (weighted %s of 15)\n", input.ActualScores.QuizScore, input.MaxScores.Quiz, input.WeightedScores.Quiz))
	builder.WriteString(fmt.Sprintf("Viva: %g out of %g (weighted %s of 15)\n", input.ActualScores.VivaScore, input.MaxScores.Viva, input.WeightedScores.Viva))
	builder.WriteString(fmt.Sprintf("Attendance: %s%% (weighted %s of 10)\n", input.ActualScores.AttendancePercentage, input.WeightedScores.Attendance))
	if input.FinalWeek > 0 {
		builder.WriteString(fmt.Sprintf("Quiz and viva are assessed in week %d.\n", input.FinalWeek))
	}
	builder.WriteString(fmt.Sprintf("\n## Weekly trend (%d of %d weeks recorded)\n", len(input.WeeklyTrend), input.ExpectedWeeks))
	for _, week := range input.WeeklyTrend {
		builder.WriteString(fmt.Sprintf("Week %d: lab %g, attendance %s\n", week.Week, week.LabMarks, week.Attendance))
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parsePredictionResponse(content string) (grading.PredictionResponse, error) {
	var data grading.PredictionResponse
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return grading.PredictionResponse{}, fmt.Errorf("parse prediction json: %w", err)
	}

	data.FinalGrade = strings.TrimSpace(data.FinalGrade)
	if data.FinalGrade == "" {
		return grading.PredictionResponse{}, fmt.Errorf("prediction json missing finalGrade")
	}

	return data, nil
}
