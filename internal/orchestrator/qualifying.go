package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/messaging/window"
	"github.com/inkline/bookingbot/internal/parsing"
	"github.com/inkline/bookingbot/internal/pricing"
)

var (
	yesKeywords          = regexp.MustCompile(`(?i)^\s*(yes|yep|yeah|correct|right)\s*$`)
	noKeywords           = regexp.MustCompile(`(?i)^\s*(no|nope|not really|negative)\s*$`)
	complexityWordsRE    = regexp.MustCompile(`(?i)\b(low|simple|medium|moderate|high|complex|intricate)\b`)
	complexityNumberRE   = regexp.MustCompile(`\b([123])\b`)
	instagramAnswerRE    = regexp.MustCompile(`@[A-Za-z0-9_.]{2,30}`)
	skipKeywords         = regexp.MustCompile(`(?i)^\s*(none|no instagram|n/?a|skip)\s*$`)
)

// handleQualifying implements §4.7's ten-step qualifying sub-protocol.
func (o *Orchestrator) handleQualifying(ctx context.Context, lead *leads.Lead, text string, hasMedia bool) (*leads.Lead, error) {
	step := lead.CurrentStep
	if step < 0 || step >= len(questionSequence) {
		step = 0
	}
	currentKey := questionSequence[step]

	// Step 2: outside the window, resend the current question as a
	// template (if configured) and return without saving or advancing.
	decision, err := o.arbiter.Arbitrate(ctx, lead, "qualifying_question", &window.Template{Name: currentKey})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: arbitrate qualifying question: %w", err)
	}
	if decision != window.DecisionOpen {
		if payload, ok := o.composePayload(lead, currentKey, nil, decision); ok {
			if _, err := o.outbox.Enqueue(ctx, lead.ArtistID, &lead.ID, "whatsapp", currentKey, payload); err != nil {
				o.logger.Error("orchestrator: enqueue closed-window question failed", "error", err, "lead_id", lead.ID)
			}
		}
		return lead, nil
	}

	// Step 3: media with no text outside the reference_images step.
	if hasMedia && currentKey != QuestionReferenceImages && text == "" {
		if err := o.send(ctx, lead, "media_wrong_step", map[string]string{"question": currentKey}); err != nil {
			o.logger.Error("orchestrator: media-wrong-step send failed", "error", err, "lead_id", lead.ID)
		}
		return lead, nil
	}

	// Step 4: HUMAN / REFUND / DELETE-DATA short-circuits (opt-out is
	// handled once, globally, before dispatch).
	switch {
	case humanKeywords.MatchString(text):
		return o.handoverTo(ctx, lead, "client requested a human")
	case refundKeywords.MatchString(text):
		return o.handoverTo(ctx, lead, "client requested a refund")
	case deleteDataKeywords.MatchString(text):
		return o.handoverTo(ctx, lead, "client requested data deletion")
	}

	value, valid := parseQualifyingField(currentKey, text, hasMedia)

	// Step 5: wrong-field guard and bundle guard.
	if parsing.WrongFieldGuardTriggered(currentKey, text) {
		if err := o.send(ctx, lead, "wrong_field_reprompt", map[string]string{"question": currentKey}); err != nil {
			o.logger.Error("orchestrator: wrong-field reprompt failed", "error", err, "lead_id", lead.ID)
		}
		return lead, nil
	}
	if parsing.BundleGuardTriggered(text, valid) {
		if err := o.send(ctx, lead, "bundle_guard_reprompt", map[string]string{"question": currentKey}); err != nil {
			o.logger.Error("orchestrator: bundle guard reprompt failed", "error", err, "lead_id", lead.ID)
		}
		return lead, nil
	}

	// Step 6: dynamic handover triggers.
	if reason, ok := detectHandoverTrigger(text); ok {
		return o.handoverTo(ctx, lead, reason)
	}

	// Step 7: invoke the parser; three-strikes on failure.
	if !valid {
		return o.repairOrHandover(ctx, lead, currentKey, text)
	}

	// Step 8: persist, reset counter, stamp last inbound.
	if _, err := o.repo.AppendAnswer(ctx, lead.ID, currentKey, text); err != nil {
		return nil, fmt.Errorf("orchestrator: append answer: %w", err)
	}
	if err := o.repo.ResetParseFailure(ctx, lead.ID, currentKey); err != nil {
		return nil, fmt.Errorf("orchestrator: reset parse failure: %w", err)
	}
	now := o.clock.Now()
	if err := o.repo.UpdateFields(ctx, lead.ID, leads.Fields{LastClientMessageAt: &now}); err != nil {
		return nil, fmt.Errorf("orchestrator: stamp last_client_message_at: %w", err)
	}
	lead.LastClientMessageAt = &now
	_ = value

	// Step 9: last question -> complete_qualification.
	if step == len(questionSequence)-1 {
		return o.completeQualification(ctx, lead)
	}

	// Step 10: advance and compose the next turn.
	ok, err := o.repo.AdvanceStepIfAt(ctx, lead.ID, step)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: advance step: %w", err)
	}
	if !ok {
		// Another inbound already advanced this lead (optimistic race);
		// re-read and let the caller retry with fresh state.
		return o.repo.GetByID(ctx, lead.ArtistID, lead.ID)
	}
	lead.CurrentStep = step + 1
	nextKey := questionSequence[lead.CurrentStep]

	answers, err := o.repo.Answers(ctx, lead.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list answers for confirmation check: %w", err)
	}
	latest := leads.LatestAnswers(answers)
	_, hasDims := latest[QuestionDimensions]
	_, hasBudget := latest[QuestionBudget]
	_, hasLocation := latest[QuestionLocation]

	messageKey := nextKey
	params := map[string]string{}
	if hasDims && hasBudget && hasLocation {
		messageKey = "confirm_and_" + nextKey
		params["dimensions"] = latest[QuestionDimensions].Text
		params["budget"] = latest[QuestionBudget].Text
		params["location"] = latest[QuestionLocation].Text
	}
	if err := o.send(ctx, lead, messageKey, params); err != nil {
		o.logger.Error("orchestrator: next-question send failed", "error", err, "lead_id", lead.ID)
	}
	return lead, nil
}

// repairOrHandover applies the three-strikes policy for field on parse
// failure (used for both qualifying answers and booking-pending slot
// selection).
func (o *Orchestrator) repairOrHandover(ctx context.Context, lead *leads.Lead, field, text string) (*leads.Lead, error) {
	count, err := o.repo.IncrementParseFailure(ctx, lead.ID, field)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: increment parse failure: %w", err)
	}
	variant := parsing.NextVariant(count - 1)
	if variant == parsing.VariantHandover {
		return o.handoverTo(ctx, lead, parsing.HandoverReason(field))
	}
	messageKey := fmt.Sprintf("repair_%s_variant_%d", field, variant)
	if err := o.send(ctx, lead, messageKey, map[string]string{"field": field}); err != nil {
		o.logger.Error("orchestrator: repair send failed", "error", err, "lead_id", lead.ID, "field", field)
	}
	return lead, nil
}

// parseQualifyingField validates the inbound text against the parser
// for questionKey, returning the parsed value (if any) and whether the
// text is a valid answer for that step.
func parseQualifyingField(questionKey, text string, hasMedia bool) (value any, valid bool) {
	trimmed := strings.TrimSpace(text)
	switch questionKey {
	case QuestionIdea, QuestionPlacement, QuestionStyle:
		return trimmed, trimmed != ""
	case QuestionCoverup:
		switch {
		case yesKeywords.MatchString(trimmed):
			return true, true
		case noKeywords.MatchString(trimmed):
			return false, true
		default:
			return nil, false
		}
	case QuestionDimensions:
		d := parsing.ParseDimensions(trimmed)
		if d == nil {
			return nil, false
		}
		return *d, true
	case QuestionComplexity:
		if m := complexityNumberRE.FindString(trimmed); m != "" {
			return m, true
		}
		if complexityWordsRE.MatchString(trimmed) {
			return trimmed, true
		}
		return nil, false
	case QuestionBudget:
		amount := parsing.ParseBudget(trimmed)
		if amount == nil {
			return nil, false
		}
		return *amount, true
	case QuestionLocation:
		loc := parsing.ParseLocation(trimmed)
		if loc == nil {
			return nil, false
		}
		return *loc, true
	case QuestionInstagramHandle:
		if skipKeywords.MatchString(trimmed) {
			return "", true
		}
		if instagramAnswerRE.MatchString(trimmed) {
			return trimmed, true
		}
		return nil, false
	case QuestionReferenceImages:
		if hasMedia || trimmed != "" {
			return trimmed, true
		}
		return nil, false
	default:
		return nil, false
	}
}

// detectHandoverTrigger applies the dynamic handover triggers in §4.7
// step 6: complexity-3, cover-up keywords, long questions, hesitation,
// price negotiation, and availability probing.
func detectHandoverTrigger(text string) (reason string, ok bool) {
	switch {
	case complexity3Keyword.MatchString(text):
		return "complexity level 3", true
	case coverupKeywords.MatchString(text):
		return "cover-up keyword detected", true
	case len(text) > longQuestionThreshold:
		return "message exceeds handover length threshold", true
	case hesitationKeywords.MatchString(text):
		return "client expressed hesitation", true
	case priceNegotiation.MatchString(text):
		return "client attempted price negotiation", true
	case availabilityProbing.MatchString(text):
		return "client probed availability directly", true
	default:
		return "", false
	}
}

// completeQualification implements §4.7's complete_qualification.
func (o *Orchestrator) completeQualification(ctx context.Context, lead *leads.Lead) (*leads.Lead, error) {
	answers, err := o.repo.Answers(ctx, lead.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list answers: %w", err)
	}
	latest := leads.LatestAnswers(answers)

	if coverupAns, ok := latest[QuestionCoverup]; ok && yesKeywords.MatchString(coverupAns.Text) {
		return o.handoverTo(ctx, lead, "cover-up requires artist review")
	}

	dims := parsing.ParseDimensions(latest[QuestionDimensions].Text)
	areaCM2 := 0.0
	if dims != nil {
		areaCM2 = dims.AreaCM2()
	}
	complexity3 := complexityNumberRE.FindString(latest[QuestionComplexity].Text) == "3" ||
		strings.Contains(strings.ToLower(latest[QuestionComplexity].Text), "high") ||
		strings.Contains(strings.ToLower(latest[QuestionComplexity].Text), "complex")
	inputs := pricing.Inputs{
		AreaCM2:     areaCM2,
		Coverup:     false,
		Complexity3: complexity3,
		Placement:   latest[QuestionPlacement].Text,
	}
	category := pricing.Category(inputs)
	estimatedDays := 0.0
	if category == leads.CategoryXL {
		estimatedDays = pricing.EstimatedDays(inputs)
	}
	depositPence := pricing.DepositPence(category, estimatedDays)

	loc := parsing.ParseLocation(latest[QuestionLocation].Text)
	country := ""
	city := ""
	if loc != nil {
		country, city = loc.Country, loc.City
	}
	region := pricing.Region(country)
	minBudget := pricing.MinBudgetPence(region)

	budgetPence := parsing.ParseBudget(latest[QuestionBudget].Text)

	if err := o.repo.UpdateFields(ctx, lead.ID, leads.Fields{
		EstimatedCategory:           &category,
		EstimatedDays:               &estimatedDays,
		EstimatedDepositAmountPence: &depositPence,
		LocationCity:                &city,
		LocationCountry:             &country,
		RegionBucket:                &region,
		MinBudgetAmountPence:        &minBudget,
	}); err != nil {
		return nil, fmt.Errorf("orchestrator: persist estimation: %w", err)
	}
	if err := o.repo.LockDepositAmount(ctx, lead.ID, depositPence); err != nil {
		return nil, fmt.Errorf("orchestrator: lock deposit amount: %w", err)
	}

	if budgetPence == nil || *budgetPence < minBudget {
		below := true
		if err := o.repo.UpdateFields(ctx, lead.ID, leads.Fields{BelowMinBudget: &below}); err != nil {
			return nil, fmt.Errorf("orchestrator: stamp below_min_budget: %w", err)
		}
		updated, err := o.repo.Transition(ctx, lead.ID, leads.StatusQualifying, leads.StatusNeedsFollowUp, "budget below regional minimum")
		if err != nil {
			return nil, fmt.Errorf("orchestrator: below-budget transition: %w", err)
		}
		if o.operator != nil {
			_ = o.operator.NotifyOperator(ctx, updated.ID, "below_min_budget", map[string]string{"phone": updated.Phone})
		}
		return updated, nil
	}

	if !o.tour.IsCityOnTour(city, o.clock.Now()) {
		if next, ok := o.tour.ClosestUpcoming(o.clock.Now()); ok {
			updated, err := o.repo.Transition(ctx, lead.ID, leads.StatusQualifying, leads.StatusTourConversionOffered, "")
			if err != nil {
				return nil, fmt.Errorf("orchestrator: tour conversion offer: %w", err)
			}
			if err := o.send(ctx, updated, "tour_conversion_offer", map[string]string{"city": next.City}); err != nil {
				o.logger.Error("orchestrator: tour conversion offer send failed", "error", err, "lead_id", updated.ID)
			}
			return updated, nil
		}
		updated, err := o.repo.Transition(ctx, lead.ID, leads.StatusQualifying, leads.StatusWaitlisted, "")
		if err != nil {
			return nil, fmt.Errorf("orchestrator: waitlist: %w", err)
		}
		if err := o.send(ctx, updated, "waitlisted", nil); err != nil {
			o.logger.Error("orchestrator: waitlisted send failed", "error", err, "lead_id", updated.ID)
		}
		return updated, nil
	}

	updated, err := o.repo.Transition(ctx, lead.ID, leads.StatusQualifying, leads.StatusPendingApproval, "")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: pending approval: %w", err)
	}
	if err := o.send(ctx, updated, "qualification_complete", nil); err != nil {
		o.logger.Error("orchestrator: completion send failed", "error", err, "lead_id", updated.ID)
	}
	if o.operator != nil {
		_ = o.operator.NotifyOperator(ctx, updated.ID, "qualification_complete", map[string]string{
			"phone":    updated.Phone,
			"category": string(category),
		})
	}
	return updated, nil
}

