package main

import (
	"fmt"
	"os"

	"github.com/dargueta/spiflash/image"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(
			os.Stderr,
			"Expand a compressed flash image to raw bytes.\nUsage: %s image-file output-file\n",
			os.Args[0])
		os.Exit(1)
	}

	imagePath := os.Args[1]
	outputPath := os.Args[2]

	imageFile, err := os.Open(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open image for reading: `%v`: %s\n", imagePath, err)
		os.Exit(1)
	}
	defer imageFile.Close()

	outFile, err := os.Create(outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open file for writing: `%v`: %s\n", outputPath, err)
		os.Exit(1)
	}
	defer outFile.Close()

	nWritten, err := image.Expand(imageFile, outFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error expanding image: %s\n", err)
		os.Exit(2)
	}

	fmt.Printf("Expanded image to %d bytes.\n", nWritten)
}
