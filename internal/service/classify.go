package service

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
	"github.com/calder-labs/persona/internal/similarity"
)

// LocalPromotionConfidence is the fixed confidence attached to facts
// promoted by the local heuristics; only a real model earns more.
const LocalPromotionConfidence = 0.7

const remoteClassifyTimeout = 3 * time.Second

// firstPersonPattern gates promotion: insight text that is not a statement
// about the user is never a fact about the user.
var firstPersonPattern = regexp.MustCompile(`(?i)^(i\s|i'm\s|i am\s|i've\s|i have\s|my\s)`)

// nationalityPattern reroutes demographic "I am a/an X" statements away
// from core, which is reserved for roles and occupations.
var nationalityPattern = regexp.MustCompile(`(?i)\bi am (?:a |an )?(american|british|canadian|australian|irish|german|french|dutch|spanish|italian|portuguese|brazilian|mexican|argentinian|indian|chinese|japanese|korean|vietnamese|russian|polish|ukrainian|turkish|egyptian|nigerian|kenyan|south african)\b`)

type categoryRule struct {
	pattern  *regexp.Regexp
	category domain.Category
}

// promotionRules are evaluated in order, first match wins. Focus outranks
// expertise so "learning Rust" never reads as mastery of it.
var promotionRules = []categoryRule{
	{regexp.MustCompile(`(?i)\b(learning|studying|building|working on|exploring|getting into)\b`), domain.CategoryFocus},
	{regexp.MustCompile(`(?i)\b(expert in|years of experience|skilled (?:in|at)|proficient (?:in|at|with)|experienced (?:in|with)|know \S+ (?:very )?well|specialize in)\b`), domain.CategoryExpertise},
	{regexp.MustCompile(`(?i)\b(work (?:at|for)|employed (?:at|by)|my (?:role|job|title|team|company))\b`), domain.CategoryCore},
	{regexp.MustCompile(`(?i)\b(prefer|like|love|enjoy|want|always|never|favorite|hate|avoid)\b`), domain.CategoryPreference},
}

var roleStatementPattern = regexp.MustCompile(`(?i)^i(?:'m| am) (?:a |an )?\w+`)

// DetectCategory infers a category from fact content when the caller did
// not supply one. Falls back to context, never fails.
func DetectCategory(content string) domain.Category {
	for _, r := range promotionRules {
		if r.pattern.MatchString(content) {
			return r.category
		}
	}
	if nationalityPattern.MatchString(content) {
		return domain.CategoryContext
	}
	if roleStatementPattern.MatchString(content) {
		return domain.CategoryCore
	}
	return domain.CategoryContext
}

// ClassifyInsightLocal is the deterministic promotion heuristic. It returns
// a non-promoting result for anything that is not a first-person durable
// statement.
func ClassifyInsightLocal(text string) *domain.PromotionResult {
	norm := similarity.Normalize(text)
	if norm == "" || !firstPersonPattern.MatchString(norm) {
		return &domain.PromotionResult{Promote: false}
	}

	for _, r := range promotionRules {
		if r.pattern.MatchString(norm) {
			return &domain.PromotionResult{
				Promote:    true,
				Category:   r.category,
				Confidence: LocalPromotionConfidence,
				Content:    norm,
			}
		}
	}

	if nationalityPattern.MatchString(norm) {
		return &domain.PromotionResult{
			Promote:    true,
			Category:   domain.CategoryContext,
			Confidence: LocalPromotionConfidence,
			Content:    norm,
		}
	}
	if roleStatementPattern.MatchString(norm) {
		return &domain.PromotionResult{
			Promote:    true,
			Category:   domain.CategoryCore,
			Confidence: LocalPromotionConfidence,
			Content:    norm,
		}
	}

	return &domain.PromotionResult{Promote: false}
}

// PromotionService decides whether insight text should become a fact.
// A remote classifier is consulted first when configured; any failure,
// timeout, or malformed verdict falls back to the local heuristics so the
// caller always gets an answer.
type PromotionService struct {
	remote  domain.PromotionClassifier
	timeout time.Duration
	logger  *zap.Logger
}

func NewPromotionService(remote domain.PromotionClassifier, logger *zap.Logger) *PromotionService {
	return &PromotionService{
		remote:  remote,
		timeout: remoteClassifyTimeout,
		logger:  logger,
	}
}

func (s *PromotionService) Classify(ctx context.Context, text string) *domain.PromotionResult {
	if s.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		result, err := s.remote.ClassifyInsight(rctx, text)
		if err == nil && validPromotion(result) {
			return result
		}
		if err != nil {
			s.logger.Warn("remote classifier unavailable, using local heuristics", zap.Error(err))
		} else {
			s.logger.Warn("remote classifier returned malformed verdict, using local heuristics")
		}
	}
	return ClassifyInsightLocal(text)
}

// validPromotion checks the structural contract of a remote verdict: a
// promoting result must carry a known category, usable confidence, and
// non-empty content.
func validPromotion(r *domain.PromotionResult) bool {
	if r == nil {
		return false
	}
	if !r.Promote {
		return true
	}
	return domain.ValidCategory(string(r.Category)) &&
		r.Confidence > 0 && r.Confidence <= 1 &&
		r.Content != ""
}
