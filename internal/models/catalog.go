package models

// Options offered by the onboarding screens. Interest and quality maps are
// keyed by these labels.
var (
	InterestOptions = []string{
		"Reading", "Photography", "Gaming", "Music", "Travel", "Painting",
		"Politics", "Charity", "Cooking", "Pets", "Sports", "Fashion",
		"Movies & TV Shows", "Personal Development", "Sustainability",
		"Volunteering", "Finance & Investing", "Science & Technology",
		"Fitness & Yoga", "Dance & Performing Arts", "History & Culture",
		"Languages & Linguistics", "Podcasts & Audiobooks", "Cars & Motorcycles",
		"DIY & Crafts", "Health & Nutrition",
	}

	QualityOptions = []string{
		"Loyalty", "Open Minded", "Passionate", "Supportive",
		"Compassion", "Empowering", "Independent", "Creative",
		"Balanced", "Confident", "Practical", "Humorous",
		"Dependable", "Curious", "Encouraging", "Playful",
		"Driven", "Kind", "Trustworthy", "Self-Sufficient",
		"Inspiring", "Down-to-Earth", "Energetic", "Enthusiastic",
		"Thoughtful", "Considerate", "Assertive", "Innovative",
		"Spontaneous", "Carefree", "Calm",
	}

	WantOptions = []string{WantProfessional, WantSocial, WantBoth}
)

var (
	interestSet = toSet(InterestOptions)
	qualitySet  = toSet(QualityOptions)
)

func IsInterest(label string) bool { return interestSet[label] }

func IsQuality(label string) bool { return qualitySet[label] }

func IsWant(want string) bool {
	return want == WantProfessional || want == WantSocial || want == WantBoth
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
