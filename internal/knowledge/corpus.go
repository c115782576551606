package knowledge

// DefaultCorpus returns the built-in hypertension corpus used when no
// external document directory is configured.
func DefaultCorpus() []Document {
	return []Document{
		{
			ID:       "guide-classification",
			Title:    "Blood pressure classification",
			Category: CategoryGuideline,
			Body: `Normal: systolic below 120 mmHg and diastolic below 80 mmHg.
Elevated: systolic 120-129 mmHg and diastolic below 80 mmHg.
Stage 1 hypertension: systolic 130-139 mmHg or diastolic 80-89 mmHg.
Stage 2 hypertension: systolic 140 mmHg or higher, or diastolic 90 mmHg or higher.
Hypertensive crisis: systolic 180 mmHg or higher, or diastolic 120 mmHg or higher.
Either component in a higher band places the reading in that band.`,
		},
		{
			ID:       "guide-risk-factors",
			Title:    "Cardiovascular risk factors",
			Category: CategoryGuideline,
			Body: `Non-modifiable: age (men 55 and over, women 65 and over), family history of
hypertension, male sex.
Modifiable: smoking, dyslipidemia, diabetes, obesity (BMI 28 or above),
physical inactivity, high-sodium diet, excess alcohol, chronic stress.
Target-organ involvement such as heart disease, kidney disease or prior
stroke raises risk independently of the reading.`,
		},
		{
			ID:       "guide-targets",
			Title:    "Treatment targets",
			Category: CategoryGuideline,
			Body: `General population: below 140/90 mmHg.
Diabetes or chronic kidney disease: below 130/80 mmHg.
Coronary disease: below 130/80 mmHg.
Age 65 or over: below 150/90 mmHg.
Lower gradually; abrupt drops are harmful in long-standing hypertension.`,
		},
		{
			ID:       "emergency-crisis",
			Title:    "Hypertensive crisis handling",
			Category: CategoryEmergency,
			Body: `A reading of 180 mmHg systolic or 120 mmHg diastolic or above is a medical
emergency. Seek care immediately; do not wait for a repeat measurement.
Watch for severe headache, blurred vision, chest pain, breathlessness or
neurological symptoms. Do not self-administer short-acting agents; blood
pressure must not be dropped abruptly (no more than 25% in the first hour).`,
		},
		{
			ID:       "life-diet",
			Title:    "Dietary adjustment",
			Category: CategoryLifestyle,
			Body: `Restrict sodium to under 6 g of salt per day. Increase potassium-rich foods:
fresh vegetables, fruit, nuts. Limit alcohol to under 25 g per day for men
and 15 g for women.`,
		},
		{
			ID:       "life-exercise",
			Title:    "Physical activity",
			Category: CategoryLifestyle,
			Body: `At least 150 minutes of moderate aerobic exercise per week, plus resistance
training two to three times weekly. Avoid sudden maximal exertion.`,
		},
		{
			ID:       "life-weight",
			Title:    "Weight management",
			Category: CategoryLifestyle,
			Body: `Keep BMI in the 18.5-23.9 range. Gradual loss of 5-10% of body weight
produces a measurable systolic reduction.`,
		},
		{
			ID:       "life-smoking",
			Title:    "Smoking cessation",
			Category: CategoryLifestyle,
			Body: `Complete cessation, including passive exposure. Consider structured
cessation support; benefit to vascular risk begins within weeks.`,
		},
		{
			ID:       "life-sleep-stress",
			Title:    "Sleep and stress",
			Category: CategoryLifestyle,
			Body: `Seven to eight hours of sleep nightly. Practice relaxation techniques;
sustained psychological stress raises ambulatory pressure.`,
		},
		{
			ID:       "med-ace-inhibitor",
			Title:    "ACE inhibitors",
			Category: CategoryMedication,
			Body: `Examples: enalapril, lisinopril, captopril.
Indications: hypertension, heart failure, diabetic kidney disease.
Strengths: renal protection, proven cardiovascular benefit.
Adverse effects: dry cough, hyperkalemia.
Contraindications: pregnancy, history of angioedema, bilateral renal artery stenosis.`,
		},
		{
			ID:       "med-arb",
			Title:    "Angiotensin receptor blockers",
			Category: CategoryMedication,
			Body: `Examples: losartan, valsartan, irbesartan.
Indications: hypertension, diabetic kidney disease, heart failure.
Strengths: low cough incidence, renal protection.
Adverse effects: hyperkalemia, dizziness.
Contraindications: pregnancy, bilateral renal artery stenosis.`,
		},
		{
			ID:       "med-calcium-channel-blocker",
			Title:    "Calcium channel blockers",
			Category: CategoryMedication,
			Body: `Examples: amlodipine, nifedipine extended-release, felodipine.
Indications: hypertension, coronary disease, older patients.
Strengths: potent pressure reduction, well suited to isolated systolic hypertension.
Adverse effects: ankle edema, gingival hyperplasia.
Contraindications: severe aortic stenosis, decompensated heart failure.`,
		},
		{
			ID:       "med-thiazide-diuretic",
			Title:    "Thiazide diuretics",
			Category: CategoryMedication,
			Body: `Examples: hydrochlorothiazide, indapamide, chlorthalidone.
Indications: hypertension, volume overload, older patients.
Strengths: inexpensive, strong outcome evidence.
Adverse effects: hypokalemia, hyperuricemia, impaired glucose tolerance.
Contraindications: gout, severe renal impairment, sulfonamide allergy.`,
		},
		{
			ID:       "med-beta-blocker",
			Title:    "Beta blockers",
			Category: CategoryMedication,
			Body: `Examples: metoprolol, bisoprolol, atenolol.
Indications: hypertension with coronary disease or heart failure.
Strengths: cardiac protection, antiarrhythmic effect.
Adverse effects: bradycardia, bronchospasm.
Contraindications: asthma, severe bradycardia, high-grade AV block.`,
		},
	}
}
