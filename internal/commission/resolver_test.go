package commission

import (
	"testing"

	"courtbook/internal/models"
)

var platformDefault = models.CommissionRule{Kind: models.CommissionPercentage, Value: 10}

func TestResolve(t *testing.T) {
	override := &models.CommissionRule{Kind: models.CommissionFlat, Value: 150}

	tests := []struct {
		name  string
		venue *models.Venue
		want  models.CommissionRule
	}{
		{"nil venue falls back", nil, platformDefault},
		{"no override falls back", &models.Venue{}, platformDefault},
		{"override wins as a whole", &models.Venue{Commission: override}, *override},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.venue, platformDefault)
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFee(t *testing.T) {
	tests := []struct {
		name  string
		rule  models.CommissionRule
		gross int64
		want  int64
	}{
		{"percentage", models.CommissionRule{Kind: models.CommissionPercentage, Value: 10}, 1000, 100},
		{"percentage rounds", models.CommissionRule{Kind: models.CommissionPercentage, Value: 12.5}, 999, 125},
		{"flat", models.CommissionRule{Kind: models.CommissionFlat, Value: 150}, 1000, 150},
		{"flat capped at gross", models.CommissionRule{Kind: models.CommissionFlat, Value: 2000}, 1000, 1000},
		{"zero gross", models.CommissionRule{Kind: models.CommissionPercentage, Value: 10}, 0, 0},
		{"negative value clamped", models.CommissionRule{Kind: models.CommissionFlat, Value: -50}, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fee(tt.rule, tt.gross); got != tt.want {
				t.Errorf("Fee(%+v, %d) = %d, want %d", tt.rule, tt.gross, got, tt.want)
			}
		})
	}
}

func TestSplitSumsToGross(t *testing.T) {
	rules := []models.CommissionRule{
		{Kind: models.CommissionPercentage, Value: 10},
		{Kind: models.CommissionPercentage, Value: 33.33},
		{Kind: models.CommissionFlat, Value: 150},
		{Kind: models.CommissionFlat, Value: 2000},
	}
	grosses := []int64{1, 500, 999, 1000, 12345}

	for _, rule := range rules {
		for _, gross := range grosses {
			fee, net := Split(rule, gross)
			if fee+net != gross {
				t.Errorf("Split(%+v, %d): fee %d + net %d != gross", rule, gross, fee, net)
			}
			if net < 0 {
				t.Errorf("Split(%+v, %d): negative venue amount %d", rule, gross, net)
			}
		}
	}
}

func TestSplitFlatOverGross(t *testing.T) {
	rule := models.CommissionRule{Kind: models.CommissionFlat, Value: 2000}
	fee, net := Split(rule, 1000)
	if fee != 1000 || net != 0 {
		t.Errorf("Split() = (%d, %d), want (1000, 0)", fee, net)
	}
}
