// Package gateway runs a generation request end to end: model lookup, entitlement,
// prompt rendering, provider dispatch and usage bookkeeping.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/promptarchitect/server/internal/entitlement"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/prompt"
	"github.com/promptarchitect/server/internal/provider"
	"github.com/promptarchitect/server/internal/store"
	"github.com/promptarchitect/server/internal/usage"
	log "github.com/sirupsen/logrus"
)

const defaultGenerationTimeout = 60 * time.Second

// Catalog loads the rows a generation depends on.
type Catalog interface {
	ActiveModel(ctx context.Context, modelID string) (*models.SupportedModel, error)
	ActiveTemplate(ctx context.Context, id string) (*models.SupportedTemplate, error)
	EnsureSubscription(ctx context.Context, userID, freeTierID string) (*models.UserSubscription, error)
}

// KeyStore looks up personal provider keys.
type KeyStore interface {
	Lookup(ctx context.Context, userID, provider string) (string, bool, error)
}

// Dispatcher calls the upstream provider.
type Dispatcher interface {
	Generate(ctx context.Context, tag string, req provider.Request) provider.Response
}

// Recorder persists usage and history after a successful generation.
type Recorder interface {
	Record(ctx context.Context, rec usage.Record) (usage.Outcome, error)
}

// Input is a generation request.
type Input struct {
	Topic             string         `json:"topic"`
	TemplateID        string         `json:"templateId,omitempty"`
	TemplateStructure string         `json:"templateStructure,omitempty"`
	Style             string         `json:"style,omitempty"`
	ModelID           string         `json:"modelId"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	UsePersonalKey    *bool          `json:"usePersonalKey,omitempty"`
}

// Options tunes a Service.
type Options struct {
	FreeTierID string
	Moderation bool
	Timeout    time.Duration // Upstream call budget.
}

// Service executes generation requests.
type Service struct {
	catalog    Catalog
	resolver   *entitlement.Resolver
	keys       KeyStore
	dispatcher Dispatcher
	recorder   Recorder
	validate   *validator.Validate
	opts       Options
}

// NewService wires a generation service.
func NewService(catalog Catalog, resolver *entitlement.Resolver, keys KeyStore, dispatcher Dispatcher, recorder Recorder, opts Options) *Service {
	if strings.TrimSpace(opts.FreeTierID) == "" {
		opts.FreeTierID = models.FreeTierID
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultGenerationTimeout
	}
	return &Service{
		catalog:    catalog,
		resolver:   resolver,
		keys:       keys,
		dispatcher: dispatcher,
		recorder:   recorder,
		validate:   newValidator(),
		opts:       opts,
	}
}

// Generate runs one generation for userID. Failures are reported in the Result.
func (s *Service) Generate(ctx context.Context, userID string, in Input) Result {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fail(CodeUnauthorized, "Unauthorized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	in.Topic = strings.TrimSpace(in.Topic)
	in.ModelID = strings.TrimSpace(in.ModelID)
	in.TemplateID = strings.TrimSpace(in.TemplateID)
	in.Style = strings.TrimSpace(in.Style)
	if errValidate := s.validate.Struct(generationInput{
		Topic:      in.Topic,
		ModelID:    in.ModelID,
		TemplateID: in.TemplateID,
		Style:      in.Style,
	}); errValidate != nil {
		return fail(CodeInvalidInput, validationMessage(errValidate))
	}

	if s.opts.Moderation && ContainsBlockedContent(in.Topic) {
		log.WithField("user_id", userID).Warn("gateway: blocked content in topic")
		return fail(CodeContentBlocked, msgContentBlocked)
	}

	model, errModel := s.catalog.ActiveModel(ctx, in.ModelID)
	if errModel != nil {
		if errors.Is(errModel, store.ErrNotFound) {
			return fail(CodeInvalidModel, fmt.Sprintf("Invalid or disabled model: %s", in.ModelID))
		}
		log.WithError(errModel).Error("gateway: load model failed")
		return fail(CodeInternal, "Failed to load model configuration")
	}

	if !provider.IsSupported(model.Provider) {
		return fail(CodeUnsupportedProvider, fmt.Sprintf("Unsupported provider: %s", model.Provider))
	}

	structure, params := s.resolveTemplate(ctx, in)

	sub, errSub := s.catalog.EnsureSubscription(ctx, userID, s.opts.FreeTierID)
	if errSub != nil {
		if errors.Is(errSub, store.ErrNotFound) {
			return fail(CodeSubscriptionNotFound, "Subscription not found")
		}
		log.WithError(errSub).Error("gateway: load subscription failed")
		return fail(CodeInternal, "Failed to load subscription")
	}
	quota := sub.Tier.PromptsIncluded()

	decision, errResolve := s.resolver.Resolve(ctx, entitlement.Input{
		Provider:           model.Provider,
		BYOKEnabled:        sub.Tier.BYOKEnabled(),
		PromptsIncluded:    quota,
		UsageCount:         sub.MonthlyUsageCount,
		WantPersonalKey:    in.UsePersonalKey,
		DefaultPersonalKey: sub.UsePersonalKeysDefault,
	}, s.personalKeyLookup(userID))
	if errResolve != nil {
		var entErr *entitlement.Error
		if errors.As(errResolve, &entErr) {
			return fail(Code(entErr.Code), entErr.Message)
		}
		log.WithError(errResolve).Error("gateway: resolve credential failed")
		return fail(CodeInternal, "Failed to load personal API key")
	}

	systemPrompt := prompt.Render(structure, params, in.Topic, in.Style)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	resp := s.dispatcher.Generate(callCtx, model.Provider, provider.Request{
		APIKey:       decision.Credential,
		SystemPrompt: systemPrompt,
		UserPrompt:   in.Topic,
		ModelID:      model.ModelID,
		Endpoint:     model.Endpoint,
	})
	cancel()
	if resp.Failed() {
		log.WithFields(log.Fields{
			"user_id":  userID,
			"provider": model.Provider,
			"model":    model.ModelID,
		}).Warnf("gateway: upstream error: %s", resp.Error)
		return fail(CodeUpstreamProviderError, resp.Error)
	}

	if s.opts.Moderation && ContainsBlockedContent(resp.Content) {
		log.WithField("user_id", userID).Warn("gateway: blocked content in output")
		return fail(CodeContentBlocked, msgOutputFlagged)
	}

	if s.recorder != nil {
		if _, errRecord := s.recorder.Record(ctx, usage.Record{
			UserID:      userID,
			TemplateID:  in.TemplateID,
			ModelID:     model.ModelID,
			Input:       in.Topic,
			Output:      resp.Content,
			PlatformKey: decision.IsPlatformKey,
			Quota:       quota,
		}); errRecord != nil {
			log.WithError(errRecord).Warn("gateway: record usage failed")
		}
	}

	return Result{Content: resp.Content, PlatformKey: decision.IsPlatformKey}
}

// resolveTemplate picks the template body and merges default params under request params.
func (s *Service) resolveTemplate(ctx context.Context, in Input) (string, map[string]any) {
	structure := in.TemplateStructure
	var defaults map[string]any
	if in.TemplateID != "" {
		template, errTemplate := s.catalog.ActiveTemplate(ctx, in.TemplateID)
		switch {
		case errTemplate == nil:
			if strings.TrimSpace(structure) == "" {
				structure = template.Structure
			}
			if len(template.DefaultParams) > 0 {
				if errDecode := json.Unmarshal(template.DefaultParams, &defaults); errDecode != nil {
					log.WithError(errDecode).Warnf("gateway: invalid default params for template %s", template.ID)
				}
			}
		case errors.Is(errTemplate, store.ErrNotFound):
		default:
			log.WithError(errTemplate).Warn("gateway: load template failed")
		}
	}
	return structure, prompt.MergeParams(defaults, in.Parameters)
}

func (s *Service) personalKeyLookup(userID string) entitlement.PersonalKeyLookup {
	if s.keys == nil {
		return nil
	}
	return func(ctx context.Context, providerTag string) (string, bool, error) {
		return s.keys.Lookup(ctx, userID, providerTag)
	}
}
