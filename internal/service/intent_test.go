package service

import "testing"

func TestClassifyIntent_Greeting(t *testing.T) {
	r := ClassifyIntent("Hello there!", "")
	if r.Intent != IntentGeneral || r.Confidence != 1.0 {
		t.Errorf("got %+v, want GENERAL/1.0", r)
	}
}

func TestClassifyIntent_SelfIntro(t *testing.T) {
	r := ClassifyIntent("Hi, my name is Alex", "")
	if r.Intent != IntentGeneral || r.Confidence != 1.0 {
		t.Errorf("got %+v, want GENERAL/1.0", r)
	}
}

func TestClassifyIntent_ShortFollowUpInheritsHint(t *testing.T) {
	r := ClassifyIntent("what about rule 5?", IntentTeaching)
	if r.Intent != IntentTeaching {
		t.Errorf("intent = %v, want inherited TEACHING", r.Intent)
	}
	if r.Confidence != 0.85 {
		t.Errorf("confidence = %f, want 0.85", r.Confidence)
	}
}

func TestClassifyIntent_ShortFollowUpNoHintDefaultsKnowledge(t *testing.T) {
	r := ClassifyIntent("what about it?", "")
	if r.Intent != IntentKnowledge {
		t.Errorf("intent = %v, want KNOWLEDGE", r.Intent)
	}
}

func TestClassifyIntent_KnowledgeKeywords(t *testing.T) {
	r := ClassifyIntent("What is the definition of a give-way vessel under COLREG Rule 15?", "")
	if r.Intent != IntentKnowledge {
		t.Errorf("intent = %v, want KNOWLEDGE", r.Intent)
	}
	if r.Confidence <= 0.7 {
		t.Errorf("confidence = %f, want > 0.7", r.Confidence)
	}
}

func TestClassifyIntent_TeachingKeywords(t *testing.T) {
	r := ClassifyIntent("Can you teach me and walk me through how stand-on vessels should react, I'm confused", "")
	if r.Intent != IntentTeaching {
		t.Errorf("intent = %v, want TEACHING", r.Intent)
	}
}

func TestClassifyIntent_AggressivePatternBoostsTeaching(t *testing.T) {
	r := ClassifyIntent("why can't I understand the difference between a practice example and a rule, I keep getting this wrong", "")
	if r.Intent != IntentTeaching {
		t.Errorf("intent = %v, want TEACHING", r.Intent)
	}
}

func TestClassifyIntent_NoKeywordsDefaultsGeneral(t *testing.T) {
	r := ClassifyIntent("I really enjoyed sailing this weekend out on the bay with friends", "")
	if r.Intent != IntentGeneral {
		t.Errorf("intent = %v, want GENERAL", r.Intent)
	}
	if r.Confidence != 0.8 {
		t.Errorf("confidence = %f, want 0.8", r.Confidence)
	}
}

func TestClassifyIntent_EntitiesExtractedAndCapped(t *testing.T) {
	msg := "Compare rule 5, rule 6, rule 7, rule 8, rule 9, and rule 10"
	r := ClassifyIntent(msg, "")
	if len(r.Entities) > maxIntentEntities {
		t.Errorf("entities len = %d, want <= %d", len(r.Entities), maxIntentEntities)
	}
	if len(r.Entities) == 0 {
		t.Error("expected at least one extracted entity")
	}
}

func TestClassifyIntent_VietnameseGreetingWithSelfIntro(t *testing.T) {
	r := ClassifyIntent("Xin chào, tôi là Minh", "")
	if r.Intent != IntentGeneral || r.Confidence != 1.0 {
		t.Errorf("got %+v, want GENERAL/1.0", r)
	}
}

func TestClassifyIntent_VietnameseSelfIntro(t *testing.T) {
	r := ClassifyIntent("Tôi là Minh", "")
	if r.Intent != IntentGeneral || r.Confidence != 1.0 {
		t.Errorf("got %+v, want GENERAL/1.0", r)
	}
}

func TestClassifyIntent_VietnameseFollowUpCueInheritsHint(t *testing.T) {
	r := ClassifyIntent("vậy thì còn điều 15 thì sao", IntentKnowledge)
	if r.Intent != IntentKnowledge {
		t.Errorf("intent = %v, want inherited KNOWLEDGE", r.Intent)
	}
	if r.Confidence != 0.85 {
		t.Errorf("confidence = %f, want 0.85", r.Confidence)
	}
}

func TestClassifyIntent_VietnameseKnowledgeKeywords(t *testing.T) {
	r := ClassifyIntent("Quy tắc 15 của COLREG nghĩa là gì?", "")
	if r.Intent != IntentKnowledge {
		t.Errorf("intent = %v, want KNOWLEDGE", r.Intent)
	}
}

func TestClassifyIntent_ConfidenceNeverExceedsOne(t *testing.T) {
	msg := "what is the rule regulation definition colreg solas marpol convention requirement annex article rule regulation require definition means applies"
	r := ClassifyIntent(msg, "")
	if r.Confidence > 1.0 {
		t.Errorf("confidence = %f, want <= 1.0", r.Confidence)
	}
}
