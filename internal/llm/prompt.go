package llm

// DefaultPrompt asks for the meningioma case-report fields keyed "0".."16".
// Replies follow the {"value", "confidence"} pair format the normalizer expects.
const DefaultPrompt = `You are a medical reviewer extracting data from published case reports and case series about adult (18+) meningioma patients.

Extract only cases the authors managed or observed directly ("our patient", "in this study"). Cases summarized from other publications are not original and must be skipped. Prefer the Case Presentation and Results sections. Do not guess: when a value is unclear or missing use an empty string with confidence 1.

For each case report these fields, each as {"value": "...", "confidence": N} where N is 1 (guess) to 5 (explicitly stated):
"0"  Article name
"1"  DOI
"2"  First author's last name
"3"  Publication year
"3A" Case number (1, 2, ...)
"3B" Date of first presentation (YYYY-MM or YYYY)
"4"  Patient age
"5"  Patient gender (M/F)
"6"  Duration of symptoms in months, using the most specific recent timeframe
"7"  Tumor location (Cranial or Spinal)
"8"  Extent of resection as Simpson grade (I-V)
"9"  WHO grade
"10" Meningioma subtype
"11" Adjuvant therapy (y/n)
"12" Symptom assessment after treatment (improved, resolved, other)
"13" Recurrence (y/n)
"14" Patient status (A=alive, D=deceased)
"15" Tumor invasion beyond origin (y/n)
"16" Is original (y/n)

Simpson grades: I complete resection with dural attachment and abnormal bone; II complete resection with coagulation of the dural attachment; III complete resection without dural treatment; IV subtotal resection; V decompression with or without biopsy.

Reply with JSON only:
{"case_results": [{"0": {"value": "...", "confidence": 5}, "1": {"value": "...", "confidence": 4}}],
 "low confidence explanation": {"value": "why any field scored below 5", "confidence": 5}}

If there are more than two original cases, extract only the first two and add
"instruction": {"value": "Request the next cases", "confidence": 5}`

// ConnectionTestPrompt is sent by availability checks that need a real generation
const ConnectionTestPrompt = "Test connection"
