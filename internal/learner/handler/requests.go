package handler

import (
	"fmt"
	"time"

	"gradegate/internal/learner/models"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
)

// ResponseInput is one answered question on the wire.
type ResponseInput struct {
	QuestionID string    `json:"question_id"`
	LearnerID  string    `json:"learner_id"`
	Subject    string    `json:"subject"`
	Difficulty int       `json:"difficulty"`
	Answer     string    `json:"answer"`
	Correct    bool      `json:"correct"`
	AnsweredAt time.Time `json:"answered_at"`
}

func (in ResponseInput) toModel(i int, subject id.Subject) (models.Response, error) {
	r := models.Response{
		QuestionID: in.QuestionID,
		Subject:    subject,
		Difficulty: in.Difficulty,
		Answer:     in.Answer,
		Correct:    in.Correct,
		AnsweredAt: in.AnsweredAt,
	}
	if in.Subject != "" {
		s, err := id.ParseSubject(in.Subject)
		if err != nil {
			return r, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("responses[%d].subject: %s", i, dErrors.MessageOf(err)))
		}
		r.Subject = s
	}
	if in.LearnerID != "" {
		learnerID, err := id.ParseLearnerID(in.LearnerID)
		if err != nil {
			return r, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("responses[%d].learner_id is not a valid id", i))
		}
		r.LearnerID = learnerID
	}
	return r, nil
}

// ScoreDomainRequest is the body of POST /scoring/domain. LearnerID, when set,
// fills responses that omit their own.
type ScoreDomainRequest struct {
	Subject   string          `json:"subject"`
	LearnerID string          `json:"learner_id"`
	Responses []ResponseInput `json:"responses"`

	subject   id.Subject
	responses []models.Response
}

func (r *ScoreDomainRequest) Validate() error {
	subject, err := id.ParseSubject(r.Subject)
	if err != nil {
		return err
	}
	r.subject = subject
	var learnerID id.LearnerID
	if r.LearnerID != "" {
		if learnerID, err = id.ParseLearnerID(r.LearnerID); err != nil {
			return err
		}
	}
	r.responses = make([]models.Response, 0, len(r.Responses))
	for i, in := range r.Responses {
		resp, err := in.toModel(i, subject)
		if err != nil {
			return err
		}
		if resp.LearnerID.IsNil() {
			resp.LearnerID = learnerID
		}
		r.responses = append(r.responses, resp)
	}
	return nil
}

// RecommendRequest is the body of POST /placement/recommend.
type RecommendRequest struct {
	Subject            string `json:"subject"`
	EnrolledGrade      int    `json:"enrolled_grade"`
	AssessedGradeLevel int    `json:"assessed_grade_level"`

	subject id.Subject
}

func (r *RecommendRequest) Validate() error {
	subject, err := id.ParseSubject(r.Subject)
	if err != nil {
		return err
	}
	r.subject = subject
	return nil
}

// RecordResponsesRequest is the body of POST /learners/{learnerID}/responses.
// Each response names its own subject.
type RecordResponsesRequest struct {
	Responses []ResponseInput `json:"responses"`

	responses []models.Response
}

func (r *RecordResponsesRequest) Validate() error {
	if len(r.Responses) == 0 {
		return dErrors.New(dErrors.CodeValidation, "responses must not be empty")
	}
	r.responses = make([]models.Response, 0, len(r.Responses))
	for i, in := range r.Responses {
		if in.Subject == "" {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("responses[%d].subject is required", i))
		}
		resp, err := in.toModel(i, "")
		if err != nil {
			return err
		}
		r.responses = append(r.responses, resp)
	}
	return nil
}

// EnrollRequest is the body of PUT /learners/{learnerID}/levels/{subject}.
// AssessedGradeLevel only seeds a new enrollment.
type EnrollRequest struct {
	TenantID           string `json:"tenant_id"`
	EnrolledGrade      int    `json:"enrolled_grade"`
	AssessedGradeLevel int    `json:"assessed_grade_level"`

	tenantID id.TenantID
}

func (r *EnrollRequest) Validate() error {
	if r.TenantID != "" {
		tenantID, err := id.ParseTenantID(r.TenantID)
		if err != nil {
			return err
		}
		r.tenantID = tenantID
	}
	return id.ValidateGrade("enrolled_grade", r.EnrolledGrade)
}

// RosterRequest is the body of POST /viewers/{viewerID}/roster.
type RosterRequest struct {
	LearnerID string `json:"learner_id"`
	TenantID  string `json:"tenant_id"`
	Scope     string `json:"scope"`

	learnerID id.LearnerID
	tenantID  id.TenantID
	scope     models.Scope
}

func (r *RosterRequest) Validate() error {
	learnerID, err := id.ParseLearnerID(r.LearnerID)
	if err != nil {
		return err
	}
	scope, err := models.ParseScope(r.Scope)
	if err != nil {
		return err
	}
	if r.TenantID != "" {
		if r.tenantID, err = id.ParseTenantID(r.TenantID); err != nil {
			return err
		}
	}
	r.learnerID = learnerID
	r.scope = scope
	return nil
}
