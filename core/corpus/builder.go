// Package corpus assembles labeled training corpora from sentences and
// their accepted annotations.
package corpus

import (
	"fmt"
	"log/slog"

	"github.com/siherrmann/annotator/core/align"
	"github.com/siherrmann/annotator/model"
)

// Builder turns reviewed annotations into training records. Spans are
// realigned to token boundaries before they enter the corpus, since
// stored spans originate from heterogeneous sources.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a corpus builder logging skipped labels to the given logger.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger}
}

// Build creates one record per sentence from the annotations accepted for
// it. annotations[i] must hold the annotations of sentences[i]. Sentences
// without accepted annotations contribute a record with no spans, which
// keeps them in the corpus as negative examples. A label whose realigned
// span is invalid is skipped with a warning, the sentence itself is kept.
func (b *Builder) Build(sentences []*model.Sentence, annotations [][]*model.Annotation) (*model.Corpus, error) {
	if sentences == nil || annotations == nil {
		return nil, fmt.Errorf("%w: sentences and annotations must not be nil", model.ErrValidation)
	}
	if len(sentences) != len(annotations) {
		return nil, fmt.Errorf("%w: got %d sentences but %d annotation sets", model.ErrValidation, len(sentences), len(annotations))
	}

	corpus := &model.Corpus{Records: make([]model.CorpusRecord, 0, len(sentences))}
	for i, sentence := range sentences {
		record := model.CorpusRecord{Text: sentence.Text, Spans: []model.LabeledSpan{}}

		for _, annotation := range annotations[i] {
			if annotation.ReviewStatus != model.ReviewStatusAccepted {
				continue
			}

			span, err := align.ExpandToTokenSpan(sentence.Text, align.Span{Begin: annotation.Begin, End: annotation.End})
			if err != nil || !span.Valid(len(sentence.Text)) {
				b.logger.Warn(
					"skipping label with invalid span",
					slog.Int("sentenceId", sentence.ID),
					slog.Int("conceptId", annotation.ConceptID),
					slog.Int("begin", annotation.Begin),
					slog.Int("end", annotation.End),
				)
				continue
			}

			record.Spans = append(record.Spans, model.LabeledSpan{
				Begin:     span.Begin,
				End:       span.End,
				ConceptID: annotation.ConceptID,
			})
		}

		corpus.Records = append(corpus.Records, record)
	}

	return corpus, nil
}
