package service

import (
	"context"
	"sort"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sis061/pilltime-sub000/internal"
	"github.com/sis061/pilltime-sub000/internal/storage"
)

const (
	MonthLayout  = "2006-01"
	indicatorTTL = 10 * time.Minute
)

var statusSeverity = map[internal.DoseStatus]int{
	internal.DoseMissed:    4,
	internal.DoseSkipped:   3,
	internal.DoseTaken:     2,
	internal.DoseScheduled: 1,
}

// IndicatorCache holds built month indicators per (user, yearMonth) with a
// time-based expiry plus explicit invalidation. Writers to dose instances
// must invalidate the months they touched before acknowledging the write.
type IndicatorCache struct {
	mu      sync.RWMutex
	entries map[string]indicatorEntry
}

type indicatorEntry struct {
	builtAt time.Time
	dots    map[string][]internal.DayDot
}

func NewIndicatorCache() *IndicatorCache {
	return &IndicatorCache{entries: make(map[string]indicatorEntry)}
}

func cacheKey(userID, yearMonth string) string {
	return userID + "|" + yearMonth
}

func (c *IndicatorCache) get(userID, yearMonth string, now time.Time) (map[string][]internal.DayDot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey(userID, yearMonth)]
	if !ok || now.Sub(e.builtAt) > indicatorTTL {
		return nil, false
	}
	return e.dots, true
}

func (c *IndicatorCache) put(userID, yearMonth string, dots map[string][]internal.DayDot, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(userID, yearMonth)] = indicatorEntry{builtAt: now, dots: dots}
}

// Invalidate drops the cached indicator for each given yearMonth. Callers
// pass the deduplicated set of months their write touched.
func (c *IndicatorCache) Invalidate(userID string, yearMonths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ym := range yearMonths {
		delete(c.entries, cacheKey(userID, ym))
	}
}

// MonthsOf deduplicates the yearMonths covering a set of civil dates.
func MonthsOf(dates ...string) []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range dates {
		if len(d) < len(MonthLayout) {
			continue
		}
		ym := d[:len(MonthLayout)]
		if !seen[ym] {
			seen[ym] = true
			out = append(out, ym)
		}
	}
	return out
}

// IndicatorService is the read-side projection over dose instances: per-day,
// per-medicine status summaries for calendar display.
type IndicatorService struct {
	doses  storage.DoseRepository
	cache  *IndicatorCache
	coll   *collate.Collator
	logger internal.Logger
	nowFn  func() time.Time
}

func NewIndicatorService(doses storage.DoseRepository, cache *IndicatorCache, tag language.Tag, logger internal.Logger) *IndicatorService {
	return &IndicatorService{
		doses:  doses,
		cache:  cache,
		coll:   collate.New(tag),
		logger: logger,
		nowFn:  time.Now,
	}
}

// Label is the first glyph of the medicine name, upper-cased when the glyph
// has an upper-case form.
func Label(medicineName string) string {
	r, size := utf8.DecodeRuneInString(medicineName)
	if size == 0 || r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}

// summarize folds the distinct statuses one medicine shows on one date into a
// single display status. All-taken wins only unanimously; one bad outcome
// taints the day, with missed outranking skipped outranking scheduled.
func summarize(statuses map[internal.DoseStatus]bool) internal.DoseStatus {
	if statuses[internal.DoseTaken] && len(statuses) == 1 {
		return internal.DoseTaken
	}
	if statuses[internal.DoseMissed] {
		return internal.DoseMissed
	}
	if statuses[internal.DoseSkipped] {
		return internal.DoseSkipped
	}
	if statuses[internal.DoseScheduled] {
		return internal.DoseScheduled
	}
	return internal.DoseTaken
}

// BuildMonthIndicator returns date -> ordered DayDot list for every date of
// the month that has at least one visible dose instance.
func (s *IndicatorService) BuildMonthIndicator(ctx context.Context, userID, yearMonth string) (map[string][]internal.DayDot, error) {
	now := s.nowFn()
	if dots, ok := s.cache.get(userID, yearMonth, now); ok {
		return dots, nil
	}

	month, err := time.Parse(MonthLayout, yearMonth)
	if err != nil {
		return nil, internal.ValidationError("yearMonth must be YYYY-MM")
	}
	first := month.Format(DateLayout)
	last := month.AddDate(0, 1, -1).Format(DateLayout)

	details, err := s.doses.ListUserDoses(ctx, userID, first, last)
	if err != nil {
		return nil, err
	}

	type medDay struct {
		name     string
		statuses map[internal.DoseStatus]bool
	}
	byDate := map[string]map[string]*medDay{} // date -> medicineID -> statuses

	for _, d := range details {
		loc, err := time.LoadLocation(d.Timezone)
		if err != nil {
			s.logger.Warnf("indicator: skipping dose %s with bad zone %q", d.ID, d.Timezone)
			continue
		}
		status := EffectiveStatus(d.DoseInstance, loc, now)
		// A row still scheduled after its day has fully elapsed was
		// manually reverted; it stays out of the month view but remains
		// actionable in the day detail.
		if status == internal.DoseScheduled && d.Date < now.In(loc).Format(DateLayout) {
			continue
		}

		meds, ok := byDate[d.Date]
		if !ok {
			meds = map[string]*medDay{}
			byDate[d.Date] = meds
		}
		md, ok := meds[d.MedicineID]
		if !ok {
			md = &medDay{name: d.MedicineName, statuses: map[internal.DoseStatus]bool{}}
			meds[d.MedicineID] = md
		}
		md.statuses[status] = true
	}

	dots := make(map[string][]internal.DayDot, len(byDate))
	for date, meds := range byDate {
		day := make([]internal.DayDot, 0, len(meds))
		for medID, md := range meds {
			day = append(day, internal.DayDot{
				MedicineID: medID,
				Label:      Label(md.name),
				Status:     summarize(md.statuses),
			})
		}
		sort.SliceStable(day, func(i, j int) bool {
			si, sj := statusSeverity[day[i].Status], statusSeverity[day[j].Status]
			if si != sj {
				return si > sj
			}
			if cmp := s.coll.CompareString(day[i].Label, day[j].Label); cmp != 0 {
				return cmp < 0
			}
			return day[i].MedicineID < day[j].MedicineID
		})
		dots[date] = day
	}

	s.cache.put(userID, yearMonth, dots, now)
	return dots, nil
}

// DoseView is the day-detail projection: the raw instance with its effective
// status already derived.
type DoseView struct {
	ID           string              `json:"id"`
	MedicineID   string              `json:"medicine_id"`
	MedicineName string              `json:"medicine_name"`
	ScheduleID   string              `json:"schedule_id"`
	Date         string              `json:"date"`
	Time         string              `json:"time"`
	Status       internal.DoseStatus `json:"status"`
	Source       internal.StatusSource `json:"source"`
	CheckedAt    *time.Time          `json:"checked_at,omitempty"`
}

// DayDetail lists one date's visible instances for the user, ordered by time.
func (s *IndicatorService) DayDetail(ctx context.Context, userID, date string) ([]DoseView, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, internal.ValidationError("date must be YYYY-MM-DD")
	}
	details, err := s.doses.ListUserDoses(ctx, userID, date, date)
	if err != nil {
		return nil, err
	}
	now := s.nowFn()
	out := make([]DoseView, 0, len(details))
	for _, d := range details {
		loc, err := time.LoadLocation(d.Timezone)
		if err != nil {
			continue
		}
		out = append(out, DoseView{
			ID:           d.ID,
			MedicineID:   d.MedicineID,
			MedicineName: d.MedicineName,
			ScheduleID:   d.ScheduleID,
			Date:         d.Date,
			Time:         d.Time,
			Status:       EffectiveStatus(d.DoseInstance, loc, now),
			Source:       d.Source,
			CheckedAt:    d.CheckedAt,
		})
	}
	return out, nil
}
