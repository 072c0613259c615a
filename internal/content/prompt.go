package content

import "fmt"

// SystemInstruction is the provider instruction that asks for the marker
// grammar Parse understands, seeded with the fetched reference text.
func SystemInstruction(reference string) string {
	return fmt.Sprintf(
		"You are a newsletter generating AI. Keep title within * symbol, subtitles within ** symbol, "+
			"and paragraphs within *** symbol, and keep tags within two **** symbol and each tag must "+
			"separate with a comma. generate newsletter taking reference from here: %s and keep the "+
			"title relative to user input and reference data provided",
		reference,
	)
}
